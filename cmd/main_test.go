package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-dispatch/internal/config"
	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/events"
	"github.com/ukydev/fleet-dispatch/internal/logging"
	"github.com/ukydev/fleet-dispatch/internal/middleware"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

func testRouter(t *testing.T, maxRequests int) *mux.Router {
	t.Helper()
	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "main-test-secret"
	cfg.Store.Driver = config.DriverMemory
	store, err := openStore(context.Background(), cfg.Store)
	require.NoError(t, err)
	limiter := middleware.NewMemoryLimiter(maxRequests, time.Minute)
	return newRouter(cfg, store, events.Nop{}, limiter, logging.Discard())
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func register(t *testing.T, r http.Handler, username string, role models.Role) string {
	t.Helper()
	w := call(t, r, http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func TestHealthAndMetrics(t *testing.T) {
	r := testRouter(t, 100)

	w := call(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = call(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fleet_dispatch_rate_limited_total")
}

func TestAPIRequiresToken(t *testing.T) {
	r := testRouter(t, 100)
	assert.Equal(t, http.StatusUnauthorized, call(t, r, http.MethodGet, "/api/trips", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, r, http.MethodGet, "/api/dashboard", "not-a-token", nil).Code)
}

func TestRolesAndTripFlow(t *testing.T) {
	r := testRouter(t, 100)
	manager := register(t, r, "manager", models.RoleFleetManager)
	dispatcher := register(t, r, "dispatcher", models.RoleDispatcher)
	analyst := register(t, r, "analyst", models.RoleFinancialAnalyst)

	vehicleReq := map[string]any{"plate_number": "KAA-001", "capacity_kg": 500, "acquisition_cost": 1000}
	assert.Equal(t, http.StatusForbidden, call(t, r, http.MethodPost, "/api/vehicles", dispatcher, vehicleReq).Code)

	w := call(t, r, http.MethodPost, "/api/vehicles", manager, vehicleReq)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v models.Vehicle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))

	w = call(t, r, http.MethodPost, "/api/drivers", manager, map[string]any{
		"name": "Ann", "license_number": "DL-1", "license_expires_at": "2099-01-01",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var d models.Driver
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))

	draft := map[string]any{"vehicle_id": v.ID, "driver_id": d.ID, "cargo_weight_kg": 100, "revenue": 50}
	assert.Equal(t, http.StatusForbidden, call(t, r, http.MethodPost, "/api/trips", analyst, draft).Code)

	w = call(t, r, http.MethodPost, "/api/trips", dispatcher, draft)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var trip models.Trip
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trip))

	w = call(t, r, http.MethodPost, "/api/trips/"+trip.ID+"/dispatch", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = call(t, r, http.MethodPost, "/api/trips/"+trip.ID+"/cancel", dispatcher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, http.MethodGet, "/api/vehicles/"+v.ID, dispatcher, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, models.VehicleAvailable, v.Status)

	assert.Equal(t, http.StatusForbidden, call(t, r, http.MethodGet, "/api/analytics/roi", dispatcher, nil).Code)
	assert.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/api/analytics/roi", analyst, nil).Code)
	assert.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/api/dashboard", dispatcher, nil).Code)

	assert.Equal(t, http.StatusForbidden, call(t, r, http.MethodGet, "/api/users", manager, nil).Code)
	w = call(t, r, http.MethodGet, "/api/auth/profile", dispatcher, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"dispatcher"`)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	r := testRouter(t, 1)
	assert.Equal(t, http.StatusUnauthorized, call(t, r, http.MethodGet, "/api/trips", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, call(t, r, http.MethodGet, "/api/trips", "", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/health", "", nil).Code)
}

func TestOpenStore(t *testing.T) {
	store, err := openStore(context.Background(), config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &db.MemoryStore{}, store)

	store, err = openStore(context.Background(), config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: t.TempDir() + "/fleet.db"})
	require.NoError(t, err)
	assert.IsType(t, &db.SQLStore{}, store)
	assert.NoError(t, store.Close(context.Background()))

	_, err = openStore(context.Background(), config.StoreConfig{Driver: "cassandra"})
	assert.Error(t, err)
}

func TestNewPublisher(t *testing.T) {
	p, err := newPublisher(config.MessagingConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Equal(t, events.Nop{}, p)

	p, err = newPublisher(config.MessagingConfig{Backend: config.BackendKafka, Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}})
	require.NoError(t, err)
	assert.IsType(t, &events.KafkaPublisher{}, p)
	assert.NoError(t, p.Close())

	_, err = newPublisher(config.MessagingConfig{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewLimiter_Memory(t *testing.T) {
	l, closeFn, err := newLimiter(context.Background(), config.RateLimitConfig{MaxRequests: 1, Window: time.Minute})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &middleware.MemoryLimiter{}, l)
}
