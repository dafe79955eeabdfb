package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// City is a named trip endpoint.
type City struct {
	Name string
	Location
}

// Cities for realistic routes
var cities = []City{
	{"Nairobi", Location{Lat: -1.2921, Lon: 36.8219}},
	{"Mombasa", Location{Lat: -4.0435, Lon: 39.6682}},
	{"Kisumu", Location{Lat: -0.0917, Lon: 34.7680}},
	{"Nakuru", Location{Lat: -0.3031, Lon: 36.0800}},
	{"Eldoret", Location{Lat: 0.5143, Lon: 35.2698}},
	{"Kampala", Location{Lat: 0.3476, Lon: 32.5825}},
	{"Arusha", Location{Lat: -3.3869, Lon: 36.6830}},
	{"Dar es Salaam", Location{Lat: -6.7924, Lon: 39.2083}},
	{"Kigali", Location{Lat: -1.9441, Lon: 30.0619}},
	{"Addis Ababa", Location{Lat: 9.0300, Lon: 38.7400}},
}

// Roads are longer than great circles.
const roadFactor = 1.25

func haversineKm(a, b Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

// APIClient talks to the fleet-dispatch HTTP API.
type APIClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{BaseURL: baseURL, Token: token, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// apiError is a non-2xx answer.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Body)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *APIClient) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username, "password": password}, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.Token = resp.Token
	return nil
}

type createdEntity struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	OdometerKm float64 `json:"odometer_km"`
}

func createVehicle(ctx context.Context, c *APIClient, rng *rand.Rand, n int) (*VehicleState, error) {
	makes := []string{"Isuzu", "Mitsubishi Fuso", "Hino", "Scania", "Mercedes-Benz"}
	models := map[string][]string{
		"Isuzu":           {"NPR", "FVZ"},
		"Mitsubishi Fuso": {"Canter", "Fighter"},
		"Hino":            {"300", "500"},
		"Scania":          {"P410", "R500"},
		"Mercedes-Benz":   {"Actros", "Atego"},
	}
	make := makes[rng.Intn(len(makes))]
	model := models[make][rng.Intn(len(models[make]))]

	req := map[string]any{
		"plate_number":     fmt.Sprintf("SIM-%03d-%04d", n, rng.Intn(10000)),
		"make":             make,
		"model":            model,
		"year":             2018 + rng.Intn(7),
		"capacity_kg":      float64(2000 + 1000*rng.Intn(8)),
		"acquisition_cost": float64(40000 + 5000*rng.Intn(12)),
		"odometer_km":      math.Round(rng.Float64() * 80000),
	}
	var v createdEntity
	if err := c.do(ctx, http.MethodPost, "/vehicles", req, &v); err != nil {
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}

	log.WithFields(log.Fields{
		"vehicle_id": v.ID,
		"make":       make,
		"model":      model,
	}).Info("Created vehicle")

	return &VehicleState{
		VehicleID:  v.ID,
		CapacityKg: req["capacity_kg"].(float64),
		OdometerKm: v.OdometerKm,
		KmPerLiter: 3 + rng.Float64()*4,
		Position:   cities[rng.Intn(len(cities))],
	}, nil
}

func createDriver(ctx context.Context, c *APIClient, rng *rand.Rand, n int) (string, error) {
	req := map[string]any{
		"name":               fmt.Sprintf("Sim Driver %d", n),
		"license_number":     fmt.Sprintf("DL-%06d", rng.Intn(1000000)),
		"license_expires_at": time.Now().AddDate(1+rng.Intn(4), 0, 0).Format(time.DateOnly),
	}
	var d createdEntity
	if err := c.do(ctx, http.MethodPost, "/drivers", req, &d); err != nil {
		return "", fmt.Errorf("failed to create driver: %w", err)
	}
	log.WithField("driver_id", d.ID).Info("Created driver")
	return d.ID, nil
}

// VehicleState is one simulated truck and its assigned driver.
type VehicleState struct {
	VehicleID  string
	DriverID   string
	CapacityKg float64
	OdometerKm float64
	KmPerLiter float64
	Position   City
}

// Probabilities tune how often a cycle deviates from draft, dispatch, complete.
type Probabilities struct {
	CancelDraft      float64
	CancelDispatched float64
	Maintenance      float64
}

var defaultProbabilities = Probabilities{CancelDraft: 0.05, CancelDispatched: 0.05, Maintenance: 0.05}

type trip struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// runCycle drives one trip through the API and, sometimes, a shop visit.
// It returns the final trip status.
func runCycle(ctx context.Context, c *APIClient, s *VehicleState, rng *rand.Rand, p Probabilities) (string, error) {
	if rng.Float64() < p.Maintenance {
		return "", serviceVehicle(ctx, c, s, rng)
	}

	dest := s.Position
	for dest.Name == s.Position.Name {
		dest = cities[rng.Intn(len(cities))]
	}
	distance := math.Round(haversineKm(s.Position.Location, dest.Location)*roadFactor*10) / 10

	var t trip
	draft := map[string]any{
		"vehicle_id":      s.VehicleID,
		"driver_id":       s.DriverID,
		"cargo_weight_kg": math.Round(s.CapacityKg * (0.3 + rng.Float64()*0.7)),
		"origin":          s.Position.Name,
		"destination":     dest.Name,
		"revenue":         math.Round(distance * (1.5 + rng.Float64())),
	}
	if err := c.do(ctx, http.MethodPost, "/trips", draft, &t); err != nil {
		return "", fmt.Errorf("create trip: %w", err)
	}
	fields := log.Fields{"trip_id": t.ID, "vehicle_id": s.VehicleID, "origin": s.Position.Name, "destination": dest.Name}

	if rng.Float64() < p.CancelDraft {
		return cancelTrip(ctx, c, t.ID, fields)
	}
	if err := c.do(ctx, http.MethodPost, "/trips/"+t.ID+"/dispatch", nil, &t); err != nil {
		return "", fmt.Errorf("dispatch trip: %w", err)
	}
	log.WithFields(fields).Info("Dispatched trip")
	if rng.Float64() < p.CancelDispatched {
		return cancelTrip(ctx, c, t.ID, fields)
	}

	start := s.OdometerKm
	end := start + distance
	if err := c.do(ctx, http.MethodPost, "/trips/"+t.ID+"/complete",
		map[string]float64{"start_odometer": start, "end_odometer": end}, &t); err != nil {
		return "", fmt.Errorf("complete trip: %w", err)
	}
	s.OdometerKm = end
	s.Position = dest

	liters := math.Round(distance/s.KmPerLiter*10) / 10
	fuel := map[string]any{
		"vehicle_id":     s.VehicleID,
		"trip_id":        t.ID,
		"liters":         liters,
		"cost_per_liter": math.Round((1.3+rng.Float64()*0.4)*100) / 100,
		"odometer_km":    end,
		"station":        dest.Name,
	}
	if err := c.do(ctx, http.MethodPost, "/fuel-logs", fuel, nil); err != nil {
		return t.Status, fmt.Errorf("log fuel: %w", err)
	}
	log.WithFields(fields).WithFields(log.Fields{"distance_km": distance, "liters": liters}).Info("Completed trip")
	return t.Status, nil
}

func cancelTrip(ctx context.Context, c *APIClient, id string, fields log.Fields) (string, error) {
	var t trip
	if err := c.do(ctx, http.MethodPost, "/trips/"+id+"/cancel", nil, &t); err != nil {
		return "", fmt.Errorf("cancel trip: %w", err)
	}
	log.WithFields(fields).Info("Cancelled trip")
	return t.Status, nil
}

// serviceVehicle sends the vehicle to the shop and releases it again.
func serviceVehicle(ctx context.Context, c *APIClient, s *VehicleState, rng *rand.Rand) error {
	types := []string{"oil_change", "inspection", "tire_rotation", "repair"}
	req := map[string]any{
		"vehicle_id": s.VehicleID,
		"type":       types[rng.Intn(len(types))],
		"cost":       math.Round(100 + rng.Float64()*900),
		"due_at":     time.Now().AddDate(0, 0, 30+rng.Intn(60)).Format(time.DateOnly),
		"vendor":     s.Position.Name + " Motors",
	}
	if err := c.do(ctx, http.MethodPost, "/maintenance", req, nil); err != nil {
		return fmt.Errorf("send to shop: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, "/vehicles/"+s.VehicleID+"/release", nil, nil); err != nil {
		return fmt.Errorf("release from shop: %w", err)
	}
	log.WithFields(log.Fields{"vehicle_id": s.VehicleID, "type": req["type"]}).Info("Serviced vehicle")
	return nil
}

func simulateVehicle(ctx context.Context, c *APIClient, s *VehicleState, interval time.Duration, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if _, err := runCycle(ctx, c, s, rng, defaultProbabilities); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
				log.WithError(err).WithField("vehicle_id", s.VehicleID).Warn("Trip conflict, retrying next tick")
				continue
			}
			log.WithError(err).WithField("vehicle_id", s.VehicleID).Error("Trip cycle failed")
		}
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			return n
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	fleetSize := envInt("FLEET_SIZE", 10)
	interval := time.Duration(envInt("SIM_TICK_SECONDS", 5)) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewAPIClient(apiURL, os.Getenv("SIM_AUTH_TOKEN"))
	if client.Token == "" {
		if err := client.Login(ctx, os.Getenv("SIM_USERNAME"), os.Getenv("SIM_PASSWORD")); err != nil {
			log.WithError(err).Fatal("Set SIM_AUTH_TOKEN or SIM_USERNAME and SIM_PASSWORD for a fleet_manager account")
		}
	}

	log.WithFields(log.Fields{
		"fleet_size": fleetSize,
		"api_url":    apiURL,
		"interval":   interval,
	}).Info("Starting fleet simulation")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	states := make([]*VehicleState, 0, fleetSize)
	for i := 0; i < fleetSize; i++ {
		s, err := createVehicle(ctx, client, rng, i+1)
		if err != nil {
			log.WithError(err).Error("Failed to create vehicle")
			continue
		}
		if s.DriverID, err = createDriver(ctx, client, rng, i+1); err != nil {
			log.WithError(err).Error("Failed to create driver")
			continue
		}
		states = append(states, s)
	}

	log.WithField("vehicles", len(states)).Info("Fleet setup completed")
	if len(states) == 0 {
		log.Error("No vehicles created. Ensure the token is valid and the API is reachable. Exiting.")
		return
	}

	var wg sync.WaitGroup
	for i, s := range states {
		wg.Add(1)
		go func(s *VehicleState, seed int64) {
			defer wg.Done()
			simulateVehicle(ctx, client, s, interval, seed)
		}(s, rng.Int63()+int64(i))
	}
	log.Info("Trip simulation started")
	wg.Wait()
	log.Info("Trip simulation stopped")
}
