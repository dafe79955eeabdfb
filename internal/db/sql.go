package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/ukydev/fleet-dispatch/internal/models"
	_ "modernc.org/sqlite"
)

// SQLStore is a Store backed by PostgreSQL (pgx) or SQLite (modernc).
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	users   *SQLUserCollection
}

// OpenSQLite opens (creating if needed) a SQLite database file and migrates it.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes every transaction.
	sqlDB.SetMaxOpenConns(1)
	return newSQLStore(sqlDB, sqliteDialect{})
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver and migrates it.
func OpenPostgres(dsn string) (*SQLStore, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLStore(sqlDB, postgresDialect{})
}

func newSQLStore(sqlDB *sql.DB, d Dialect) (*SQLStore, error) {
	if _, err := sqlDB.Exec(d.Schema()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.Name(), err)
	}
	s := &SQLStore{db: sqlDB, dialect: d}
	s.users = &SQLUserCollection{db: sqlDB, dialect: d}
	return s, nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Users() UserCollection { return s.users }

func (s *SQLStore) Close(context.Context) error { return s.db.Close() }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlAccess runs every query of the store against q. lock is appended to
// single-row reads inside transactions.
type sqlAccess struct {
	q       queryer
	dialect Dialect
	lock    string
}

func (a sqlAccess) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.q.QueryContext(ctx, a.dialect.Rebind(query), args...)
}

func (a sqlAccess) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return a.q.QueryRowContext(ctx, a.dialect.Rebind(query), args...)
}

func (a sqlAccess) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.q.ExecContext(ctx, a.dialect.Rebind(query), args...)
}

func (a sqlAccess) timeArg(t time.Time) any { return a.dialect.TimeValue(t) }

func (a sqlAccess) timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return a.dialect.TimeValue(*t)
}

func floatPtrArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func stringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLStore) reader() sqlAccess { return sqlAccess{q: s.db, dialect: s.dialect} }

type rowScanner interface{ Scan(...any) error }

const vehicleCols = `id, plate_number, make, model, year, status, capacity_kg, acquisition_cost, odometer_km, version, created_at, updated_at`

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	var created, updated any
	err := row.Scan(&v.ID, &v.PlateNumber, &v.Make, &v.Model, &v.Year, &v.Status,
		&v.CapacityKg, &v.AcquisitionCost, &v.OdometerKm, &v.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(created)
	v.UpdatedAt = parseTime(updated)
	return &v, nil
}

const driverCols = `id, name, license_number, license_expires_at, status, phone, email, version, created_at, updated_at`

func scanDriver(row rowScanner) (*models.Driver, error) {
	var d models.Driver
	var expires, created, updated any
	err := row.Scan(&d.ID, &d.Name, &d.LicenseNumber, &expires, &d.Status, &d.Phone, &d.Email,
		&d.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.LicenseExpiresAt = parseTime(expires)
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return &d, nil
}

const tripCols = `id, status, vehicle_id, driver_id, origin, destination, cargo_weight_kg, distance_km, revenue, scheduled_at, dispatched_at, completed_at, start_odometer, end_odometer, notes, version, created_at, updated_at`

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var scheduled, dispatched, completed, created, updated any
	var startOdo, endOdo sql.NullFloat64
	err := row.Scan(&t.ID, &t.Status, &t.VehicleID, &t.DriverID, &t.Origin, &t.Destination,
		&t.CargoWeightKg, &t.DistanceKm, &t.Revenue, &scheduled, &dispatched, &completed,
		&startOdo, &endOdo, &t.Notes, &t.Version, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.ScheduledAt = parseTimePtr(scheduled)
	t.DispatchedAt = parseTimePtr(dispatched)
	t.CompletedAt = parseTimePtr(completed)
	if startOdo.Valid {
		t.StartOdometer = &startOdo.Float64
	}
	if endOdo.Valid {
		t.EndOdometer = &endOdo.Float64
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

const fuelCols = `id, vehicle_id, trip_id, liters, cost_per_liter, odometer_km, fueled_at, station, created_at`

func scanFuelLog(row rowScanner) (*models.FuelLog, error) {
	var f models.FuelLog
	var tripID sql.NullString
	var odo sql.NullFloat64
	var fueled, created any
	err := row.Scan(&f.ID, &f.VehicleID, &tripID, &f.Liters, &f.CostPerLiter, &odo, &fueled, &f.Station, &created)
	if err != nil {
		return nil, err
	}
	f.TripID = tripID.String
	if odo.Valid {
		f.OdometerKm = &odo.Float64
	}
	f.FueledAt = parseTime(fueled)
	f.CreatedAt = parseTime(created)
	return &f, nil
}

const maintenanceCols = `id, vehicle_id, type, description, cost, performed_at, due_at, vendor, created_at`

func scanMaintenanceLog(row rowScanner) (*models.MaintenanceLog, error) {
	var l models.MaintenanceLog
	var performed, due, created any
	err := row.Scan(&l.ID, &l.VehicleID, &l.Type, &l.Description, &l.Cost, &performed, &due, &l.Vendor, &created)
	if err != nil {
		return nil, err
	}
	l.PerformedAt = parseTime(performed)
	l.DueAt = parseTimePtr(due)
	l.CreatedAt = parseTime(created)
	return &l, nil
}

func scanAll[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (a sqlAccess) findVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	v, err := scanVehicle(a.queryRow(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id = ?`+a.lock, id))
	return v, notFound(err)
}

func (a sqlAccess) findDriver(ctx context.Context, id string) (*models.Driver, error) {
	d, err := scanDriver(a.queryRow(ctx, `SELECT `+driverCols+` FROM drivers WHERE id = ?`+a.lock, id))
	return d, notFound(err)
}

func (a sqlAccess) findTrip(ctx context.Context, id string) (*models.Trip, error) {
	t, err := scanTrip(a.queryRow(ctx, `SELECT `+tripCols+` FROM trips WHERE id = ?`+a.lock, id))
	return t, notFound(err)
}

func (a sqlAccess) listTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error) {
	var where []string
	var args []any
	if filter.VehicleID != "" {
		where = append(where, "vehicle_id = ?")
		args = append(args, filter.VehicleID)
	}
	if filter.DriverID != "" {
		where = append(where, "driver_id = ?")
		args = append(args, filter.DriverID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	query := `SELECT ` + tripCols + ` FROM trips`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	rows, err := a.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanTrip)
}

func (a sqlAccess) listActiveTrips(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	return a.listTrips(ctx, TripFilter{
		VehicleID: vehicleID,
		Statuses:  []models.TripStatus{models.TripDraft, models.TripDispatched},
	})
}

func (a sqlAccess) insertMaintenanceLog(ctx context.Context, l *models.MaintenanceLog) error {
	prepareMaintenanceLog(l)
	_, err := a.exec(ctx, `INSERT INTO maintenance_logs (`+maintenanceCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.VehicleID, string(l.Type), l.Description, l.Cost, a.timeArg(l.PerformedAt),
		a.timePtrArg(l.DueAt), l.Vendor, a.timeArg(l.CreatedAt))
	return err
}

func (s *SQLStore) FindVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	return s.reader().findVehicle(ctx, id)
}

func (s *SQLStore) FindDriver(ctx context.Context, id string) (*models.Driver, error) {
	return s.reader().findDriver(ctx, id)
}

func (s *SQLStore) FindTrip(ctx context.Context, id string) (*models.Trip, error) {
	return s.reader().findTrip(ctx, id)
}

func (s *SQLStore) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	rows, err := s.reader().query(ctx, `SELECT `+vehicleCols+` FROM vehicles ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanVehicle)
}

func (s *SQLStore) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	rows, err := s.reader().query(ctx, `SELECT `+driverCols+` FROM drivers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanDriver)
}

func (s *SQLStore) ListTrips(ctx context.Context, filter TripFilter) ([]models.Trip, error) {
	return s.reader().listTrips(ctx, filter)
}

func (s *SQLStore) FindTripsByIDs(ctx context.Context, ids []string) ([]models.Trip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	rows, err := s.reader().query(ctx,
		`SELECT `+tripCols+` FROM trips WHERE id IN (`+strings.Join(marks, ", ")+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanTrip)
}

func (s *SQLStore) ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	return s.reader().listActiveTrips(ctx, vehicleID)
}

func (s *SQLStore) ListFuelLogs(ctx context.Context, vehicleID string, from, to *time.Time) ([]models.FuelLog, error) {
	r := s.reader()
	query := `SELECT ` + fuelCols + ` FROM fuel_logs WHERE vehicle_id = ?`
	args := []any{vehicleID}
	if from != nil {
		query += " AND fueled_at >= ?"
		args = append(args, r.timeArg(*from))
	}
	if to != nil {
		query += " AND fueled_at <= ?"
		args = append(args, r.timeArg(*to))
	}
	query += " ORDER BY fueled_at, id"
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanFuelLog)
}

func (s *SQLStore) ListMaintenanceLogs(ctx context.Context, vehicleID string) ([]models.MaintenanceLog, error) {
	query := `SELECT ` + maintenanceCols + ` FROM maintenance_logs`
	var args []any
	if vehicleID != "" {
		query += " WHERE vehicle_id = ?"
		args = append(args, vehicleID)
	}
	query += " ORDER BY performed_at, id"
	rows, err := s.reader().query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanMaintenanceLog)
}

// countByStatusSQL runs one GROUP BY query over table.
func (s *SQLStore) countByStatusSQL(ctx context.Context, table string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM `+table+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (s *SQLStore) VehicleCountsByStatus(ctx context.Context) (map[models.VehicleStatus]int64, error) {
	counts, err := s.countByStatusSQL(ctx, "vehicles")
	if err != nil {
		return nil, err
	}
	out := zeroVehicleCounts()
	for k, n := range counts {
		out[models.VehicleStatus(k)] += n
	}
	return out, nil
}

func (s *SQLStore) DriverCountsByStatus(ctx context.Context) (map[models.DriverStatus]int64, error) {
	counts, err := s.countByStatusSQL(ctx, "drivers")
	if err != nil {
		return nil, err
	}
	out := zeroDriverCounts()
	for k, n := range counts {
		out[models.DriverStatus(k)] += n
	}
	return out, nil
}

func (s *SQLStore) TripCountsByStatus(ctx context.Context) (map[models.TripStatus]int64, error) {
	counts, err := s.countByStatusSQL(ctx, "trips")
	if err != nil {
		return nil, err
	}
	out := zeroTripCounts()
	for k, n := range counts {
		out[models.TripStatus(k)] += n
	}
	return out, nil
}

func (s *SQLStore) InsertVehicle(ctx context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Version = 1
	stamp(&v.CreatedAt, &v.UpdatedAt)
	r := s.reader()
	_, err := r.exec(ctx, `INSERT INTO vehicles (`+vehicleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.PlateNumber, v.Make, v.Model, v.Year, string(v.Status), v.CapacityKg, v.AcquisitionCost,
		v.OdometerKm, v.Version, r.timeArg(v.CreatedAt), r.timeArg(v.UpdatedAt))
	return err
}

func (s *SQLStore) InsertDriver(ctx context.Context, d *models.Driver) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Version = 1
	stamp(&d.CreatedAt, &d.UpdatedAt)
	r := s.reader()
	_, err := r.exec(ctx, `INSERT INTO drivers (`+driverCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.LicenseNumber, r.timeArg(d.LicenseExpiresAt), string(d.Status), d.Phone, d.Email,
		d.Version, r.timeArg(d.CreatedAt), r.timeArg(d.UpdatedAt))
	return err
}

func (s *SQLStore) InsertFuelLog(ctx context.Context, f *models.FuelLog) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	stamp(&f.CreatedAt, nil)
	r := s.reader()
	_, err := r.exec(ctx, `INSERT INTO fuel_logs (`+fuelCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.VehicleID, stringArg(f.TripID), f.Liters, f.CostPerLiter, floatPtrArg(f.OdometerKm),
		r.timeArg(f.FueledAt), f.Station, r.timeArg(f.CreatedAt))
	return err
}

func (s *SQLStore) InsertMaintenanceLog(ctx context.Context, l *models.MaintenanceLog) error {
	return s.reader().insertMaintenanceLog(ctx, l)
}

// RunInTransaction runs fn inside a database transaction. On PostgreSQL the
// rows fn reads by id are locked until commit.
func (s *SQLStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &sqlTxStore{sqlAccess{q: sqlTx, dialect: s.dialect, lock: s.dialect.LockClause()}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTxStore struct {
	sqlAccess
}

func (tx *sqlTxStore) FindVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	return tx.findVehicle(ctx, id)
}

func (tx *sqlTxStore) FindDriver(ctx context.Context, id string) (*models.Driver, error) {
	return tx.findDriver(ctx, id)
}

func (tx *sqlTxStore) FindTrip(ctx context.Context, id string) (*models.Trip, error) {
	return tx.findTrip(ctx, id)
}

func (tx *sqlTxStore) ListActiveTripsForVehicle(ctx context.Context, vehicleID string) ([]models.Trip, error) {
	return tx.listActiveTrips(ctx, vehicleID)
}

func (tx *sqlTxStore) InsertTrip(ctx context.Context, t *models.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Version = 1
	stamp(&t.CreatedAt, &t.UpdatedAt)
	_, err := tx.exec(ctx, `INSERT INTO trips (`+tripCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Status), t.VehicleID, t.DriverID, t.Origin, t.Destination, t.CargoWeightKg,
		t.DistanceKm, t.Revenue, tx.timePtrArg(t.ScheduledAt), tx.timePtrArg(t.DispatchedAt),
		tx.timePtrArg(t.CompletedAt), floatPtrArg(t.StartOdometer), floatPtrArg(t.EndOdometer),
		t.Notes, t.Version, tx.timeArg(t.CreatedAt), tx.timeArg(t.UpdatedAt))
	return err
}

// checkCAS turns a zero-row compare-and-set into ErrNotFound or ErrVersionConflict.
func (tx *sqlTxStore) checkCAS(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = tx.queryRow(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if err != nil {
		return notFound(err)
	}
	return ErrVersionConflict
}

func (tx *sqlTxStore) UpdateTrip(ctx context.Context, t *models.Trip) error {
	now := time.Now().UTC()
	res, err := tx.exec(ctx, `UPDATE trips SET status = ?, vehicle_id = ?, driver_id = ?, origin = ?, destination = ?,
		cargo_weight_kg = ?, distance_km = ?, revenue = ?, scheduled_at = ?, dispatched_at = ?, completed_at = ?,
		start_odometer = ?, end_odometer = ?, notes = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(t.Status), t.VehicleID, t.DriverID, t.Origin, t.Destination, t.CargoWeightKg, t.DistanceKm,
		t.Revenue, tx.timePtrArg(t.ScheduledAt), tx.timePtrArg(t.DispatchedAt), tx.timePtrArg(t.CompletedAt),
		floatPtrArg(t.StartOdometer), floatPtrArg(t.EndOdometer), t.Notes, tx.timeArg(now), t.ID, t.Version)
	if err != nil {
		return err
	}
	if err := tx.checkCAS(ctx, res, "trips", t.ID); err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func (tx *sqlTxStore) DeleteTrip(ctx context.Context, t *models.Trip) error {
	res, err := tx.exec(ctx, `DELETE FROM trips WHERE id = ? AND version = ?`, t.ID, t.Version)
	if err != nil {
		return err
	}
	return tx.checkCAS(ctx, res, "trips", t.ID)
}

func (tx *sqlTxStore) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	now := time.Now().UTC()
	res, err := tx.exec(ctx, `UPDATE vehicles SET plate_number = ?, make = ?, model = ?, year = ?, status = ?,
		capacity_kg = ?, acquisition_cost = ?, odometer_km = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		v.PlateNumber, v.Make, v.Model, v.Year, string(v.Status), v.CapacityKg, v.AcquisitionCost,
		v.OdometerKm, tx.timeArg(now), v.ID, v.Version)
	if err != nil {
		return err
	}
	if err := tx.checkCAS(ctx, res, "vehicles", v.ID); err != nil {
		return err
	}
	v.Version++
	v.UpdatedAt = now
	return nil
}

func (tx *sqlTxStore) UpdateDriver(ctx context.Context, d *models.Driver) error {
	now := time.Now().UTC()
	res, err := tx.exec(ctx, `UPDATE drivers SET name = ?, license_number = ?, license_expires_at = ?, status = ?,
		phone = ?, email = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		d.Name, d.LicenseNumber, tx.timeArg(d.LicenseExpiresAt), string(d.Status), d.Phone, d.Email,
		tx.timeArg(now), d.ID, d.Version)
	if err != nil {
		return err
	}
	if err := tx.checkCAS(ctx, res, "drivers", d.ID); err != nil {
		return err
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

func (tx *sqlTxStore) InsertMaintenanceLog(ctx context.Context, l *models.MaintenanceLog) error {
	return tx.insertMaintenanceLog(ctx, l)
}
