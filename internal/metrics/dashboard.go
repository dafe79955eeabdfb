package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

// Dashboard is the fleet overview shown on the landing page.
type Dashboard struct {
	VehicleCount      int64                          `json:"vehicle_count"`
	DriverCount       int64                          `json:"driver_count"`
	AvailableVehicles int64                          `json:"available_vehicle_count"`
	AssignableDrivers int64                          `json:"available_driver_count"`
	DraftTrips        int64                          `json:"trip_draft_count"`
	DispatchedTrips   int64                          `json:"trip_dispatched_count"`
	ActiveFleet       int64                          `json:"active_fleet"`
	InShop            int64                          `json:"in_shop"`
	UtilizationRate   *float64                       `json:"utilization_rate"`
	PendingTrips      int64                          `json:"pending_trips"`
	MaintenanceAlerts MaintenanceAlerts              `json:"maintenance_alerts"`
	VehiclesByStatus  map[models.VehicleStatus]int64 `json:"vehicles_by_status"`
	TripsByStatus     map[models.TripStatus]int64    `json:"trips_by_status"`
	FleetFuelEff      map[string]*float64            `json:"fleet_fuel_efficiency"`
	FleetROI          map[string]*float64            `json:"fleet_roi"`
}

// Dashboard assembles the overview for the calendar day of today.
func (e *Engine) Dashboard(ctx context.Context, today time.Time, dueSoonDays int) (*Dashboard, error) {
	vehicles, err := e.store.VehicleCountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("vehicle counts: %w", err)
	}
	trips, err := e.store.TripCountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("trip counts: %w", err)
	}
	drivers, err := e.store.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	alerts, err := e.MaintenanceAlerts(ctx, today, dueSoonDays)
	if err != nil {
		return nil, err
	}
	fuel, err := e.FleetFuelEfficiency(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	roi, err := e.FleetROI(ctx)
	if err != nil {
		return nil, err
	}

	var assignable int64
	for i := range drivers {
		if drivers[i].Status == models.DriverAvailable && drivers[i].LicenseValidOn(today) {
			assignable++
		}
	}

	total := sum(vehicles)
	return &Dashboard{
		VehicleCount:      total,
		DriverCount:       int64(len(drivers)),
		AvailableVehicles: vehicles[models.VehicleAvailable],
		AssignableDrivers: assignable,
		DraftTrips:        trips[models.TripDraft],
		DispatchedTrips:   trips[models.TripDispatched],
		ActiveFleet:       total - vehicles[models.VehicleOutOfService],
		InShop:            vehicles[models.VehicleInShop],
		UtilizationRate:   utilization(vehicles),
		PendingTrips:      trips[models.TripDraft] + trips[models.TripDispatched],
		MaintenanceAlerts: alerts,
		VehiclesByStatus:  vehicles,
		TripsByStatus:     trips,
		FleetFuelEff:      fuel,
		FleetROI:          roi,
	}, nil
}

// VehicleReport is the analytics view of one vehicle.
type VehicleReport struct {
	Vehicle         *models.Vehicle `json:"vehicle"`
	Costs           Costs           `json:"costs"`
	OperationalCost float64         `json:"operational_cost"`
	FuelEfficiency  *float64        `json:"fuel_efficiency"`
	ROI             *float64        `json:"roi"`
	CostPerKm       *float64        `json:"cost_per_km"`
}

// VehicleReport gathers every per-vehicle metric. from and to bound the fuel
// efficiency only.
func (e *Engine) VehicleReport(ctx context.Context, vehicleID string, from, to *time.Time) (*VehicleReport, error) {
	v, err := e.store.FindVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("find vehicle %s: %w", vehicleID, err)
	}
	c, err := e.costs(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	eff, err := e.FuelEfficiency(ctx, v.ID, from, to)
	if err != nil {
		return nil, err
	}
	roi, err := e.vehicleROI(ctx, v)
	if err != nil {
		return nil, err
	}
	return &VehicleReport{
		Vehicle:         v,
		Costs:           c,
		OperationalCost: c.OperationalCost(),
		FuelEfficiency:  eff,
		ROI:             roi,
		CostPerKm:       c.costPerKm(),
	}, nil
}
