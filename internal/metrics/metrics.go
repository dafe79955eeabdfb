// Package metrics computes fleet KPIs on demand from the raw trip, fuel and
// maintenance records. Nothing computed here is ever stored.
package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// DefaultDueSoonDays is the maintenance look-ahead window.
const DefaultDueSoonDays = 7

type Engine struct {
	store db.Reader
}

func NewEngine(store db.Reader) *Engine {
	return &Engine{store: store}
}

// FuelEfficiency returns km per liter for the vehicle's fuel logs in
// [from, to], rounded to 2 places. Distance comes from the trips the logs
// link to, falling back to the spread of the logged odometer readings. It
// returns nil when no fuel or no usable distance was recorded.
func (e *Engine) FuelEfficiency(ctx context.Context, vehicleID string, from, to *time.Time) (*float64, error) {
	logs, err := e.store.ListFuelLogs(ctx, vehicleID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list fuel logs: %w", err)
	}

	var liters float64
	var tripIDs []string
	for _, l := range logs {
		liters += l.Liters
		if l.TripID != "" {
			tripIDs = append(tripIDs, l.TripID)
		}
	}
	if liters <= 0 {
		return nil, nil
	}

	var km float64
	if len(tripIDs) > 0 {
		trips, err := e.store.FindTripsByIDs(ctx, tripIDs)
		if err != nil {
			return nil, fmt.Errorf("find linked trips: %w", err)
		}
		for _, t := range trips {
			km += t.DistanceKm
		}
	}
	if km <= 0 {
		km = odometerSpread(logs)
	}
	if km <= 0 {
		return nil, nil
	}
	return ptr(round(km/liters, 2)), nil
}

// odometerSpread is last minus first odometer reading, in fueling order,
// or 0 when fewer than two logs carry one.
func odometerSpread(logs []models.FuelLog) float64 {
	var first, last *float64
	n := 0
	for _, l := range logs {
		if l.OdometerKm == nil {
			continue
		}
		if first == nil {
			first = l.OdometerKm
		}
		last = l.OdometerKm
		n++
	}
	if n < 2 {
		return 0
	}
	return *last - *first
}

// VehicleROI returns (completed trip revenue - fuel cost - maintenance cost)
// divided by the acquisition cost, rounded to 4 places. It is nil for a
// vehicle with no acquisition cost.
func (e *Engine) VehicleROI(ctx context.Context, vehicleID string) (*float64, error) {
	v, err := e.store.FindVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("find vehicle %s: %w", vehicleID, err)
	}
	return e.vehicleROI(ctx, v)
}

func (e *Engine) vehicleROI(ctx context.Context, v *models.Vehicle) (*float64, error) {
	if v.AcquisitionCost <= 0 {
		return nil, nil
	}
	c, err := e.costs(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	net := c.Revenue - (c.FuelCost + c.MaintenanceCost)
	return ptr(round(net/v.AcquisitionCost, 4)), nil
}

// CostPerKm returns fuel plus maintenance cost per completed-trip kilometre,
// rounded to 2 places, or nil when no distance has been completed.
func (e *Engine) CostPerKm(ctx context.Context, vehicleID string) (*float64, error) {
	c, err := e.costs(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return c.costPerKm(), nil
}

// Costs are the all-time operating totals of one vehicle.
type Costs struct {
	Revenue         float64 `json:"revenue"`
	FuelCost        float64 `json:"fuel_cost"`
	FuelLiters      float64 `json:"fuel_liters"`
	MaintenanceCost float64 `json:"maintenance_cost"`
	CompletedKm     float64 `json:"completed_km"`
	CompletedTrips  int     `json:"completed_trips"`
}

func (c Costs) OperationalCost() float64 {
	return c.FuelCost + c.MaintenanceCost
}

func (c Costs) costPerKm() *float64 {
	if c.CompletedKm <= 0 {
		return nil
	}
	return ptr(round(c.OperationalCost()/c.CompletedKm, 2))
}

func (e *Engine) costs(ctx context.Context, vehicleID string) (Costs, error) {
	var c Costs
	trips, err := e.store.ListTrips(ctx, db.TripFilter{VehicleID: vehicleID, Statuses: []models.TripStatus{models.TripCompleted}})
	if err != nil {
		return c, fmt.Errorf("list completed trips: %w", err)
	}
	for _, t := range trips {
		c.Revenue += t.Revenue
		c.CompletedKm += t.DistanceKm
	}
	c.CompletedTrips = len(trips)

	fuel, err := e.store.ListFuelLogs(ctx, vehicleID, nil, nil)
	if err != nil {
		return c, fmt.Errorf("list fuel logs: %w", err)
	}
	for _, f := range fuel {
		c.FuelCost += f.Cost()
		c.FuelLiters += f.Liters
	}

	maint, err := e.store.ListMaintenanceLogs(ctx, vehicleID)
	if err != nil {
		return c, fmt.Errorf("list maintenance logs: %w", err)
	}
	for _, m := range maint {
		c.MaintenanceCost += m.Cost
	}
	return c, nil
}

// FleetFuelEfficiency maps every vehicle id to its fuel efficiency. Vehicles
// without a value keep a nil entry.
func (e *Engine) FleetFuelEfficiency(ctx context.Context, from, to *time.Time) (map[string]*float64, error) {
	return e.perVehicle(ctx, func(v *models.Vehicle) (*float64, error) {
		return e.FuelEfficiency(ctx, v.ID, from, to)
	})
}

func (e *Engine) FleetROI(ctx context.Context) (map[string]*float64, error) {
	return e.perVehicle(ctx, func(v *models.Vehicle) (*float64, error) {
		return e.vehicleROI(ctx, v)
	})
}

func (e *Engine) FleetCostPerKm(ctx context.Context) (map[string]*float64, error) {
	return e.perVehicle(ctx, func(v *models.Vehicle) (*float64, error) {
		return e.CostPerKm(ctx, v.ID)
	})
}

func (e *Engine) perVehicle(ctx context.Context, fn func(v *models.Vehicle) (*float64, error)) (map[string]*float64, error) {
	vehicles, err := e.store.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	out := make(map[string]*float64, len(vehicles))
	for i := range vehicles {
		val, err := fn(&vehicles[i])
		if err != nil {
			return nil, fmt.Errorf("vehicle %s: %w", vehicles[i].ID, err)
		}
		out[vehicles[i].ID] = val
	}
	return out, nil
}

// VehicleCountsByStatus has an entry for every status, zero included.
func (e *Engine) VehicleCountsByStatus(ctx context.Context) (map[models.VehicleStatus]int64, error) {
	return e.store.VehicleCountsByStatus(ctx)
}

// TripCountsByStatus has an entry for every status, zero included.
func (e *Engine) TripCountsByStatus(ctx context.Context) (map[models.TripStatus]int64, error) {
	return e.store.TripCountsByStatus(ctx)
}

// UtilizationRate is the share of vehicles in use, in percent to 1 place,
// or nil for an empty fleet.
func (e *Engine) UtilizationRate(ctx context.Context) (*float64, error) {
	counts, err := e.store.VehicleCountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("vehicle counts: %w", err)
	}
	return utilization(counts), nil
}

func utilization(counts map[models.VehicleStatus]int64) *float64 {
	total := sum(counts)
	if total == 0 {
		return nil
	}
	return ptr(round(float64(counts[models.VehicleInUse])/float64(total)*100, 1))
}

func sum[K comparable](counts map[K]int64) int64 {
	var n int64
	for _, c := range counts {
		n += c
	}
	return n
}

func ptr(v float64) *float64 { return &v }

// round rounds half away from zero.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
