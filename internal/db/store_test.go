package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// storeFactory returns a fresh, empty store for one test.
type storeFactory func(t *testing.T) Store

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "fleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func newMemoryStore(*testing.T) Store { return NewMemoryStore() }

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": newMemoryStore,
		"sqlite": newSQLiteStore,
		"mongo":  newMongoTestStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("find missing", func(t *testing.T) { testFindMissing(t, factory(t)) })
			t.Run("transaction commit", func(t *testing.T) { testTransactionCommit(t, factory(t)) })
			t.Run("transaction rollback", func(t *testing.T) { testTransactionRollback(t, factory(t)) })
			t.Run("stale version", func(t *testing.T) { testStaleVersion(t, factory(t)) })
			t.Run("delete trip", func(t *testing.T) { testDeleteTrip(t, factory(t)) })
			t.Run("status counts", func(t *testing.T) { testStatusCounts(t, factory(t)) })
			t.Run("fuel and maintenance logs", func(t *testing.T) { testLogs(t, factory(t)) })
			t.Run("trip queries", func(t *testing.T) { testTripQueries(t, factory(t)) })
		})
	}
}

func seedVehicle(t *testing.T, s Store, plate string, status models.VehicleStatus) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{PlateNumber: plate, Make: "Volvo", Model: "FH16", Year: 2021, Status: status, CapacityKg: 5000, AcquisitionCost: 100000}
	require.NoError(t, s.InsertVehicle(context.Background(), v))
	require.NotEmpty(t, v.ID)
	require.Equal(t, int64(1), v.Version)
	return v
}

func seedDriver(t *testing.T, s Store, name string, status models.DriverStatus) *models.Driver {
	t.Helper()
	d := &models.Driver{Name: name, LicenseNumber: "LIC-" + name, LicenseExpiresAt: time.Now().UTC().AddDate(1, 0, 0).Truncate(time.Second), Status: status}
	require.NoError(t, s.InsertDriver(context.Background(), d))
	require.NotEmpty(t, d.ID)
	return d
}

func seedTrip(t *testing.T, s Store, v *models.Vehicle, d *models.Driver, status models.TripStatus) *models.Trip {
	t.Helper()
	trip := &models.Trip{Status: status, VehicleID: v.ID, DriverID: d.ID, Origin: "Depot", Destination: "Port", CargoWeightKg: 1000, Revenue: 500}
	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertTrip(ctx, trip)
	})
	require.NoError(t, err)
	return trip
}

func testFindMissing(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.FindVehicle(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindDriver(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindTrip(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func testTransactionCommit(t *testing.T, s Store) {
	ctx := context.Background()
	v := seedVehicle(t, s, "AB-100", models.VehicleAvailable)
	d := seedDriver(t, s, "ana", models.DriverAvailable)

	var trip *models.Trip
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		vehicle, err := tx.FindVehicle(ctx, v.ID)
		if err != nil {
			return err
		}
		trip = &models.Trip{Status: models.TripDraft, VehicleID: v.ID, DriverID: d.ID, CargoWeightKg: 1200}
		if err := tx.InsertTrip(ctx, trip); err != nil {
			return err
		}
		active, err := tx.ListActiveTripsForVehicle(ctx, v.ID)
		if err != nil {
			return err
		}
		if len(active) != 1 {
			return errors.New("staged trip not visible inside transaction")
		}
		vehicle.Status = models.VehicleInUse
		return tx.UpdateVehicle(ctx, vehicle)
	})
	require.NoError(t, err)

	got, err := s.FindVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleInUse, got.Status)
	assert.Equal(t, int64(2), got.Version)

	stored, err := s.FindTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripDraft, stored.Status)
	assert.Equal(t, 1200.0, stored.CargoWeightKg)
	assert.Equal(t, int64(1), stored.Version)
}

func testTransactionRollback(t *testing.T, s Store) {
	ctx := context.Background()
	v := seedVehicle(t, s, "AB-101", models.VehicleAvailable)
	d := seedDriver(t, s, "ben", models.DriverAvailable)
	boom := errors.New("boom")

	var tripID string
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		trip := &models.Trip{Status: models.TripDraft, VehicleID: v.ID, DriverID: d.ID}
		if err := tx.InsertTrip(ctx, trip); err != nil {
			return err
		}
		tripID = trip.ID
		driver, err := tx.FindDriver(ctx, d.ID)
		if err != nil {
			return err
		}
		driver.Status = models.DriverOnTrip
		if err := tx.UpdateDriver(ctx, driver); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindTrip(ctx, tripID)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.FindDriver(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DriverAvailable, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func testStaleVersion(t *testing.T, s Store) {
	ctx := context.Background()
	v := seedVehicle(t, s, "AB-102", models.VehicleAvailable)
	d := seedDriver(t, s, "cleo", models.DriverAvailable)
	trip := seedTrip(t, s, v, d, models.TripDraft)

	// First writer bumps the vehicle.
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		fresh, err := tx.FindVehicle(ctx, v.ID)
		if err != nil {
			return err
		}
		fresh.Status = models.VehicleInShop
		return tx.UpdateVehicle(ctx, fresh)
	})
	require.NoError(t, err)

	// Second writer still holds version 1.
	stale := *v
	stale.Status = models.VehicleInUse
	err = s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateVehicle(ctx, &stale)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	staleTrip := *trip
	staleTrip.Version = 7
	staleTrip.Status = models.TripDispatched
	err = s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateTrip(ctx, &staleTrip)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	staleDriver := *d
	staleDriver.Version = 0
	err = s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateDriver(ctx, &staleDriver)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	missing := models.Vehicle{ID: "missing", Version: 1}
	err = s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateVehicle(ctx, &missing)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.FindVehicle(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleInShop, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func testDeleteTrip(t *testing.T, s Store) {
	ctx := context.Background()
	v := seedVehicle(t, s, "AB-103", models.VehicleAvailable)
	d := seedDriver(t, s, "dara", models.DriverAvailable)
	trip := seedTrip(t, s, v, d, models.TripDraft)

	stale := *trip
	stale.Version = 5
	err := s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteTrip(ctx, &stale)
	})
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = s.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteTrip(ctx, trip)
	})
	require.NoError(t, err)
	_, err = s.FindTrip(ctx, trip.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testStatusCounts(t *testing.T, s Store) {
	ctx := context.Background()
	v1 := seedVehicle(t, s, "AB-104", models.VehicleAvailable)
	seedVehicle(t, s, "AB-105", models.VehicleAvailable)
	seedVehicle(t, s, "AB-106", models.VehicleOutOfService)
	d := seedDriver(t, s, "eli", models.DriverAvailable)
	seedDriver(t, s, "fay", models.DriverSuspended)
	seedTrip(t, s, v1, d, models.TripDraft)
	seedTrip(t, s, v1, d, models.TripCompleted)
	seedTrip(t, s, v1, d, models.TripCompleted)

	vehicles, err := s.VehicleCountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.VehicleStatus]int64{
		models.VehicleAvailable:    2,
		models.VehicleInUse:        0,
		models.VehicleInShop:       0,
		models.VehicleOutOfService: 1,
	}, vehicles)

	drivers, err := s.DriverCountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), drivers[models.DriverAvailable])
	assert.Equal(t, int64(1), drivers[models.DriverSuspended])
	assert.Equal(t, int64(0), drivers[models.DriverOnTrip])

	trips, err := s.TripCountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.TripStatus]int64{
		models.TripDraft:      1,
		models.TripDispatched: 0,
		models.TripCompleted:  2,
		models.TripCancelled:  0,
	}, trips)
}

func testLogs(t *testing.T, s Store) {
	ctx := context.Background()
	v := seedVehicle(t, s, "AB-107", models.VehicleAvailable)
	other := seedVehicle(t, s, "AB-108", models.VehicleAvailable)
	base := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	odo := 1200.0

	for i, liters := range []float64{30, 20, 10} {
		f := &models.FuelLog{VehicleID: v.ID, Liters: liters, CostPerLiter: 1.5, FueledAt: base.AddDate(0, 0, 2-i)}
		if i == 0 {
			f.OdometerKm = &odo
		}
		require.NoError(t, s.InsertFuelLog(ctx, f))
	}
	require.NoError(t, s.InsertFuelLog(ctx, &models.FuelLog{VehicleID: other.ID, Liters: 99, FueledAt: base}))

	logs, err := s.ListFuelLogs(ctx, v.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, []float64{10, 20, 30}, []float64{logs[0].Liters, logs[1].Liters, logs[2].Liters})
	assert.True(t, logs[0].FueledAt.Equal(base))
	require.NotNil(t, logs[2].OdometerKm)
	assert.Equal(t, odo, *logs[2].OdometerKm)
	assert.Nil(t, logs[0].OdometerKm)

	from := base.AddDate(0, 0, 1)
	logs, err = s.ListFuelLogs(ctx, v.ID, &from, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	to := base
	logs, err = s.ListFuelLogs(ctx, v.ID, nil, &to)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	due := base.AddDate(0, 1, 0)
	require.NoError(t, s.InsertMaintenanceLog(ctx, &models.MaintenanceLog{VehicleID: v.ID, Type: models.MaintenanceOilChange, Cost: 120, PerformedAt: base, DueAt: &due}))
	require.NoError(t, s.InsertMaintenanceLog(ctx, &models.MaintenanceLog{VehicleID: other.ID, Cost: 80, PerformedAt: base}))

	mine, err := s.ListMaintenanceLogs(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.MaintenanceOilChange, mine[0].Type)
	require.NotNil(t, mine[0].DueAt)
	assert.True(t, mine[0].DueAt.Equal(due))

	all, err := s.ListMaintenanceLogs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, l := range all {
		if l.VehicleID == other.ID {
			assert.Equal(t, models.MaintenanceOther, l.Type, "empty type defaults to other")
		}
	}
}

func testTripQueries(t *testing.T, s Store) {
	ctx := context.Background()
	v1 := seedVehicle(t, s, "AB-109", models.VehicleAvailable)
	v2 := seedVehicle(t, s, "AB-110", models.VehicleAvailable)
	d := seedDriver(t, s, "gus", models.DriverAvailable)
	draft := seedTrip(t, s, v1, d, models.TripDraft)
	done := seedTrip(t, s, v1, d, models.TripCompleted)
	other := seedTrip(t, s, v2, d, models.TripDispatched)

	active, err := s.ListActiveTripsForVehicle(ctx, v1.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, draft.ID, active[0].ID)

	completed, err := s.ListTrips(ctx, TripFilter{VehicleID: v1.ID, Statuses: []models.TripStatus{models.TripCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, done.ID, completed[0].ID)

	byDriver, err := s.ListTrips(ctx, TripFilter{DriverID: d.ID})
	require.NoError(t, err)
	assert.Len(t, byDriver, 3)

	found, err := s.FindTripsByIDs(ctx, []string{other.ID, draft.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	none, err := s.FindTripsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
