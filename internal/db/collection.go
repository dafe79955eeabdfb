package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a write carries a stale version.
	ErrVersionConflict = errors.New("version conflict")
)

// TripFilter narrows ListTrips. Zero values match everything.
type TripFilter struct {
	VehicleID string
	DriverID  string
	Statuses  []models.TripStatus
}

// Reader is the read-only view of the entity store.
type Reader interface {
	FindVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	FindDriver(ctx context.Context, id string) (*models.Driver, error)
	FindTrip(ctx context.Context, id string) (*models.Trip, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	ListTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error)
	FindTripsByIDs(ctx context.Context, ids []string) ([]models.Trip, error)
	ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error)
	// ListFuelLogs returns logs ordered by fueled_at. Nil bounds are open.
	ListFuelLogs(ctx context.Context, vehicleID string, from, to *time.Time) ([]models.FuelLog, error)
	// ListMaintenanceLogs returns logs for one vehicle, or all logs when vehicleID is empty.
	ListMaintenanceLogs(ctx context.Context, vehicleID string) ([]models.MaintenanceLog, error)
	VehicleCountsByStatus(ctx context.Context) (map[models.VehicleStatus]int64, error)
	DriverCountsByStatus(ctx context.Context) (map[models.DriverStatus]int64, error)
	TripCountsByStatus(ctx context.Context) (map[models.TripStatus]int64, error)
}

// Registry holds the plain single-entity inserts.
type Registry interface {
	InsertVehicle(ctx context.Context, v *models.Vehicle) error
	InsertDriver(ctx context.Context, d *models.Driver) error
	InsertFuelLog(ctx context.Context, f *models.FuelLog) error
	InsertMaintenanceLog(ctx context.Context, m *models.MaintenanceLog) error
}

// Tx is the unit of work passed to RunInTransaction.
//
// Update and delete methods compare the entity's Version with the stored one
// and fail with ErrVersionConflict on mismatch. On success the passed entity
// carries the new version.
type Tx interface {
	FindVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	FindDriver(ctx context.Context, id string) (*models.Driver, error)
	FindTrip(ctx context.Context, id string) (*models.Trip, error)
	ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error)
	InsertTrip(ctx context.Context, t *models.Trip) error
	UpdateTrip(ctx context.Context, t *models.Trip) error
	DeleteTrip(ctx context.Context, t *models.Trip) error
	UpdateVehicle(ctx context.Context, v *models.Vehicle) error
	UpdateDriver(ctx context.Context, d *models.Driver) error
	InsertMaintenanceLog(ctx context.Context, m *models.MaintenanceLog) error
}

// Store is a complete entity store backend.
type Store interface {
	Reader
	Registry
	// RunInTransaction runs fn atomically. Any error returned by fn rolls
	// back every write fn made. fn must use the ctx it is given.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Users() UserCollection
	Close(ctx context.Context) error
}

func zeroVehicleCounts() map[models.VehicleStatus]int64 {
	out := make(map[models.VehicleStatus]int64, len(models.VehicleStatuses))
	for _, s := range models.VehicleStatuses {
		out[s] = 0
	}
	return out
}

func zeroDriverCounts() map[models.DriverStatus]int64 {
	out := make(map[models.DriverStatus]int64, len(models.DriverStatuses))
	for _, s := range models.DriverStatuses {
		out[s] = 0
	}
	return out
}

func zeroTripCounts() map[models.TripStatus]int64 {
	out := make(map[models.TripStatus]int64, len(models.TripStatuses))
	for _, s := range models.TripStatuses {
		out[s] = 0
	}
	return out
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}
