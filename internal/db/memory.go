package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// MemoryStore is an in-process Store. Transactions are serialized and staged
// in an overlay that is applied only when the callback succeeds.
type MemoryStore struct {
	txMu sync.Mutex

	mu          sync.RWMutex
	vehicles    map[string]models.Vehicle
	drivers     map[string]models.Driver
	trips       map[string]models.Trip
	fuelLogs    map[string]models.FuelLog
	maintenance map[string]models.MaintenanceLog
	users       *MemoryUserCollection
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles:    make(map[string]models.Vehicle),
		drivers:     make(map[string]models.Driver),
		trips:       make(map[string]models.Trip),
		fuelLogs:    make(map[string]models.FuelLog),
		maintenance: make(map[string]models.MaintenanceLog),
		users:       NewMemoryUserCollection(),
	}
}

func (m *MemoryStore) Users() UserCollection { return m.users }

func (m *MemoryStore) Close(context.Context) error { return nil }

func (m *MemoryStore) FindVehicle(_ context.Context, id string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) FindDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) FindTrip(_ context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) ListVehicles(context.Context) ([]models.Vehicle, error) {
	m.mu.RLock()
	out := make([]models.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (m *MemoryStore) ListDrivers(context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (m *MemoryStore) ListTrips(_ context.Context, filter TripFilter) ([]models.Trip, error) {
	m.mu.RLock()
	var out []models.Trip
	for _, t := range m.trips {
		if tripMatches(t, filter) {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()
	sortTrips(out)
	return out, nil
}

func (m *MemoryStore) FindTripsByIDs(_ context.Context, ids []string) ([]models.Trip, error) {
	m.mu.RLock()
	var out []models.Trip
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := m.trips[id]; ok {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()
	sortTrips(out)
	return out, nil
}

func (m *MemoryStore) ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	return m.ListTrips(ctx, TripFilter{VehicleID: vehicleID, Statuses: []models.TripStatus{models.TripDraft, models.TripDispatched}})
}

func (m *MemoryStore) ListFuelLogs(_ context.Context, vehicleID string, from, to *time.Time) ([]models.FuelLog, error) {
	m.mu.RLock()
	var out []models.FuelLog
	for _, f := range m.fuelLogs {
		if f.VehicleID != vehicleID {
			continue
		}
		if from != nil && f.FueledAt.Before(*from) {
			continue
		}
		if to != nil && f.FueledAt.After(*to) {
			continue
		}
		out = append(out, f)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return before(out[i].FueledAt, out[i].ID, out[j].FueledAt, out[j].ID) })
	return out, nil
}

func (m *MemoryStore) ListMaintenanceLogs(_ context.Context, vehicleID string) ([]models.MaintenanceLog, error) {
	m.mu.RLock()
	var out []models.MaintenanceLog
	for _, l := range m.maintenance {
		if vehicleID == "" || l.VehicleID == vehicleID {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return before(out[i].PerformedAt, out[i].ID, out[j].PerformedAt, out[j].ID) })
	return out, nil
}

func (m *MemoryStore) VehicleCountsByStatus(context.Context) (map[models.VehicleStatus]int64, error) {
	out := zeroVehicleCounts()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		out[v.Status]++
	}
	return out, nil
}

func (m *MemoryStore) DriverCountsByStatus(context.Context) (map[models.DriverStatus]int64, error) {
	out := zeroDriverCounts()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		out[d.Status]++
	}
	return out, nil
}

func (m *MemoryStore) TripCountsByStatus(context.Context) (map[models.TripStatus]int64, error) {
	out := zeroTripCounts()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trips {
		out[t.Status]++
	}
	return out, nil
}

func (m *MemoryStore) InsertVehicle(_ context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Version = 1
	stamp(&v.CreatedAt, &v.UpdatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = *v
	return nil
}

func (m *MemoryStore) InsertDriver(_ context.Context, d *models.Driver) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Version = 1
	stamp(&d.CreatedAt, &d.UpdatedAt)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = *d
	return nil
}

func (m *MemoryStore) InsertFuelLog(_ context.Context, f *models.FuelLog) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	stamp(&f.CreatedAt, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuelLogs[f.ID] = *f
	return nil
}

func (m *MemoryStore) InsertMaintenanceLog(_ context.Context, l *models.MaintenanceLog) error {
	prepareMaintenanceLog(l)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maintenance[l.ID] = *l
	return nil
}

// RunInTransaction runs fn against a private overlay and applies the overlay
// only if fn returns nil.
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memoryTx{
		store:    m,
		vehicles: make(map[string]models.Vehicle),
		drivers:  make(map[string]models.Driver),
		trips:    make(map[string]*models.Trip),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range tx.vehicles {
		m.vehicles[id] = v
	}
	for id, d := range tx.drivers {
		m.drivers[id] = d
	}
	for id, t := range tx.trips {
		if t == nil {
			delete(m.trips, id)
			continue
		}
		m.trips[id] = *t
	}
	for _, l := range tx.maintenance {
		m.maintenance[l.ID] = l
	}
	return nil
}

type memoryTx struct {
	store       *MemoryStore
	vehicles    map[string]models.Vehicle
	drivers     map[string]models.Driver
	trips       map[string]*models.Trip // nil marks a deleted trip
	maintenance []models.MaintenanceLog
}

func (tx *memoryTx) FindVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	if v, ok := tx.vehicles[id]; ok {
		return &v, nil
	}
	return tx.store.FindVehicle(ctx, id)
}

func (tx *memoryTx) FindDriver(ctx context.Context, id string) (*models.Driver, error) {
	if d, ok := tx.drivers[id]; ok {
		return &d, nil
	}
	return tx.store.FindDriver(ctx, id)
}

func (tx *memoryTx) FindTrip(ctx context.Context, id string) (*models.Trip, error) {
	if t, ok := tx.trips[id]; ok {
		if t == nil {
			return nil, ErrNotFound
		}
		cp := *t
		return &cp, nil
	}
	return tx.store.FindTrip(ctx, id)
}

func (tx *memoryTx) ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	committed, err := tx.store.ListActiveTripsForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	var out []models.Trip
	for _, t := range committed {
		if _, staged := tx.trips[t.ID]; !staged {
			out = append(out, t)
		}
	}
	for _, t := range tx.trips {
		if t != nil && t.VehicleID == vehicleID && t.Status.IsActive() {
			out = append(out, *t)
		}
	}
	sortTrips(out)
	return out, nil
}

func (tx *memoryTx) InsertTrip(_ context.Context, t *models.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Version = 1
	stamp(&t.CreatedAt, &t.UpdatedAt)
	cp := *t
	tx.trips[t.ID] = &cp
	return nil
}

func (tx *memoryTx) UpdateTrip(ctx context.Context, t *models.Trip) error {
	current, err := tx.FindTrip(ctx, t.ID)
	if err != nil {
		return err
	}
	if current.Version != t.Version {
		return ErrVersionConflict
	}
	t.Version++
	stamp(nil, &t.UpdatedAt)
	cp := *t
	tx.trips[t.ID] = &cp
	return nil
}

func (tx *memoryTx) DeleteTrip(ctx context.Context, t *models.Trip) error {
	current, err := tx.FindTrip(ctx, t.ID)
	if err != nil {
		return err
	}
	if current.Version != t.Version {
		return ErrVersionConflict
	}
	tx.trips[t.ID] = nil
	return nil
}

func (tx *memoryTx) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	current, err := tx.FindVehicle(ctx, v.ID)
	if err != nil {
		return err
	}
	if current.Version != v.Version {
		return ErrVersionConflict
	}
	v.Version++
	stamp(nil, &v.UpdatedAt)
	tx.vehicles[v.ID] = *v
	return nil
}

func (tx *memoryTx) UpdateDriver(ctx context.Context, d *models.Driver) error {
	current, err := tx.FindDriver(ctx, d.ID)
	if err != nil {
		return err
	}
	if current.Version != d.Version {
		return ErrVersionConflict
	}
	d.Version++
	stamp(nil, &d.UpdatedAt)
	tx.drivers[d.ID] = *d
	return nil
}

func (tx *memoryTx) InsertMaintenanceLog(_ context.Context, l *models.MaintenanceLog) error {
	prepareMaintenanceLog(l)
	tx.maintenance = append(tx.maintenance, *l)
	return nil
}

func prepareMaintenanceLog(l *models.MaintenanceLog) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Type == "" {
		l.Type = models.MaintenanceOther
	}
	stamp(&l.CreatedAt, nil)
}

func tripMatches(t models.Trip, f TripFilter) bool {
	if f.VehicleID != "" && t.VehicleID != f.VehicleID {
		return false
	}
	if f.DriverID != "" && t.DriverID != f.DriverID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

func sortTrips(trips []models.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		return before(trips[i].CreatedAt, trips[i].ID, trips[j].CreatedAt, trips[j].ID)
	})
}

func before(ta time.Time, ida string, tb time.Time, idb string) bool {
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ida < idb
}
