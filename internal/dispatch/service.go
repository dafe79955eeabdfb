// Package dispatch moves trips through their lifecycle and keeps the status
// of the assigned vehicle and driver in step with the trip.
//
// Every operation runs in a single store transaction. Guards run before any
// write, and each write of a trip, vehicle or driver is a version
// compare-and-set, so two callers racing for the same vehicle cannot both
// commit. Vehicle and driver status are only ever written from here.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/events"
	"github.com/ukydev/fleet-dispatch/internal/models"
	"github.com/ukydev/fleet-dispatch/internal/observability"
)

const publishTimeout = 5 * time.Second

// Store is the transactional part of the entity store used by Service.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error
}

type Service struct {
	store     Store
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Service)

// WithPublisher sets where committed transitions are announced.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone that decides the current calendar day for
// license checks.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: events.Nop{},
		log:       logrus.StandardLogger(),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DraftInput describes a new trip.
type DraftInput struct {
	VehicleID     string     `json:"vehicle_id"`
	DriverID      string     `json:"driver_id"`
	CargoWeightKg float64    `json:"cargo_weight_kg"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	Revenue       float64    `json:"revenue"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// DraftPatch changes a draft trip. Nil fields are left as they are.
type DraftPatch struct {
	VehicleID     *string    `json:"vehicle_id,omitempty"`
	DriverID      *string    `json:"driver_id,omitempty"`
	CargoWeightKg *float64   `json:"cargo_weight_kg,omitempty"`
	Origin        *string    `json:"origin,omitempty"`
	Destination   *string    `json:"destination,omitempty"`
	Revenue       *float64   `json:"revenue,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

func (in DraftInput) validate() error {
	if in.VehicleID == "" || in.DriverID == "" {
		return validationf("vehicle_id and driver_id are required")
	}
	if in.Revenue < 0 {
		return validationf("revenue must not be negative")
	}
	return nil
}

func (p DraftPatch) validate() error {
	if p.VehicleID != nil && *p.VehicleID == "" {
		return validationf("vehicle_id must not be empty")
	}
	if p.DriverID != nil && *p.DriverID == "" {
		return validationf("driver_id must not be empty")
	}
	if p.Revenue != nil && *p.Revenue < 0 {
		return validationf("revenue must not be negative")
	}
	return nil
}

// CreateDraft persists a new draft trip after checking the vehicle, the
// driver, the cargo and that the vehicle has no other active trip.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (*models.Trip, error) {
	if err := in.validate(); err != nil {
		return nil, s.reject("create", err)
	}
	now := s.clock()

	var trip *models.Trip
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		v, err := loadVehicle(ctx, tx, in.VehicleID)
		if err != nil {
			return err
		}
		d, err := loadDriver(ctx, tx, in.DriverID)
		if err != nil {
			return err
		}
		if err := checkAssignment(v, d, in.CargoWeightKg, now); err != nil {
			return err
		}
		if err := ensureNoActiveTrip(ctx, tx, v.ID, ""); err != nil {
			return err
		}

		t := &models.Trip{
			Status:        models.TripDraft,
			VehicleID:     v.ID,
			DriverID:      d.ID,
			Origin:        in.Origin,
			Destination:   in.Destination,
			CargoWeightKg: in.CargoWeightKg,
			Revenue:       in.Revenue,
			ScheduledAt:   in.ScheduledAt,
			Notes:         in.Notes,
		}
		if err := tx.InsertTrip(ctx, t); err != nil {
			return fmt.Errorf("insert trip: %w", err)
		}
		// The vehicle row is the serialization point for its trips: a
		// concurrent draft or dispatch on the same vehicle loses the CAS.
		if err := tx.UpdateVehicle(ctx, v); err != nil {
			return fmt.Errorf("reserve vehicle %s: %w", v.ID, err)
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, s.reject("create", err)
	}
	s.committed(ctx, events.TripCreated, trip, "")
	return trip, nil
}

// UpdateDraft applies patch to a draft trip and re-runs every guard against
// the resulting vehicle, driver and cargo.
func (s *Service) UpdateDraft(ctx context.Context, tripID string, patch DraftPatch) (*models.Trip, error) {
	if err := patch.validate(); err != nil {
		return nil, s.reject("update", err)
	}
	now := s.clock()

	var trip *models.Trip
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if t.Status != models.TripDraft {
			return invalidTransitionf("trip %s is %s, only drafts can be edited", t.ID, t.Status)
		}

		vehicleID, driverID, cargo := t.VehicleID, t.DriverID, t.CargoWeightKg
		if patch.VehicleID != nil {
			vehicleID = *patch.VehicleID
		}
		if patch.DriverID != nil {
			driverID = *patch.DriverID
		}
		if patch.CargoWeightKg != nil {
			cargo = *patch.CargoWeightKg
		}

		v, err := loadVehicle(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		d, err := loadDriver(ctx, tx, driverID)
		if err != nil {
			return err
		}
		if err := checkAssignment(v, d, cargo, now); err != nil {
			return err
		}
		if v.ID != t.VehicleID {
			if err := ensureNoActiveTrip(ctx, tx, v.ID, t.ID); err != nil {
				return err
			}
			if err := tx.UpdateVehicle(ctx, v); err != nil {
				return fmt.Errorf("reserve vehicle %s: %w", v.ID, err)
			}
		}

		t.VehicleID, t.DriverID, t.CargoWeightKg = v.ID, d.ID, cargo
		if patch.Origin != nil {
			t.Origin = *patch.Origin
		}
		if patch.Destination != nil {
			t.Destination = *patch.Destination
		}
		if patch.Revenue != nil {
			t.Revenue = *patch.Revenue
		}
		if patch.ScheduledAt != nil {
			t.ScheduledAt = patch.ScheduledAt
		}
		if patch.Notes != nil {
			t.Notes = *patch.Notes
		}
		if err := tx.UpdateTrip(ctx, t); err != nil {
			return fmt.Errorf("update trip %s: %w", t.ID, err)
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, s.reject("update", err)
	}
	s.committed(ctx, events.TripUpdated, trip, models.TripDraft)
	return trip, nil
}

// Dispatch moves a draft trip to dispatched, putting the vehicle in use and
// the driver on trip. Assignability is checked against their current state.
func (s *Service) Dispatch(ctx context.Context, tripID string) (*models.Trip, error) {
	now := s.clock()

	var trip *models.Trip
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if !t.CanTransitionTo(models.TripDispatched) {
			return invalidTransitionf("cannot dispatch trip %s from %s", t.ID, t.Status)
		}
		v, err := loadVehicle(ctx, tx, t.VehicleID)
		if err != nil {
			return err
		}
		d, err := loadDriver(ctx, tx, t.DriverID)
		if err != nil {
			return err
		}
		if err := checkAssignment(v, d, t.CargoWeightKg, now); err != nil {
			return err
		}
		if err := ensureNoActiveTrip(ctx, tx, v.ID, t.ID); err != nil {
			return err
		}

		at := now.UTC()
		t.Status = models.TripDispatched
		t.DispatchedAt = &at
		v.Status = models.VehicleInUse
		d.Status = models.DriverOnTrip
		if err := writeAll(ctx, tx, t, v, d); err != nil {
			return err
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, s.reject("dispatch", err)
	}
	s.committed(ctx, events.TripDispatched, trip, models.TripDraft)
	return trip, nil
}

// Complete closes a dispatched trip and frees its vehicle and driver. The
// odometer readings are optional but must be given together; when present
// they set the trip distance and the vehicle odometer.
func (s *Service) Complete(ctx context.Context, tripID string, startOdometer, endOdometer *float64) (*models.Trip, error) {
	if (startOdometer == nil) != (endOdometer == nil) {
		return nil, s.reject("complete", validationf("start and end odometer must be given together"))
	}
	now := s.clock()

	var trip *models.Trip
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if !t.CanTransitionTo(models.TripCompleted) {
			return invalidTransitionf("cannot complete trip %s from %s", t.ID, t.Status)
		}
		v, err := loadVehicle(ctx, tx, t.VehicleID)
		if err != nil {
			return err
		}
		d, err := loadDriver(ctx, tx, t.DriverID)
		if err != nil {
			return err
		}

		if startOdometer != nil {
			start, end := *startOdometer, *endOdometer
			if end <= start {
				return newError(ErrOdometerConsistency, "end odometer %.1f must be greater than start odometer %.1f", end, start)
			}
			if start < v.OdometerKm {
				return newError(ErrOdometerConsistency, "start odometer %.1f is below vehicle %s reading of %.1f", start, v.ID, v.OdometerKm)
			}
			t.StartOdometer = &start
			t.EndOdometer = &end
			t.DistanceKm = end - start
			v.OdometerKm = end
		}

		at := now.UTC()
		t.Status = models.TripCompleted
		t.CompletedAt = &at
		v.Status = models.VehicleAvailable
		d.Status = models.DriverAvailable
		if err := writeAll(ctx, tx, t, v, d); err != nil {
			return err
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, s.reject("complete", err)
	}
	s.committed(ctx, events.TripCompleted, trip, models.TripDispatched)
	return trip, nil
}

// Cancel cancels a draft or dispatched trip. Only a dispatched trip releases
// its vehicle and driver; cancelling a draft touches nothing else.
func (s *Service) Cancel(ctx context.Context, tripID string) (*models.Trip, error) {
	var (
		trip *models.Trip
		from models.TripStatus
	)
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if !t.CanTransitionTo(models.TripCancelled) {
			return invalidTransitionf("cannot cancel trip %s from %s", t.ID, t.Status)
		}
		from = t.Status
		t.Status = models.TripCancelled

		if from != models.TripDispatched {
			if err := tx.UpdateTrip(ctx, t); err != nil {
				return fmt.Errorf("update trip %s: %w", t.ID, err)
			}
			trip = t
			return nil
		}

		v, err := loadVehicle(ctx, tx, t.VehicleID)
		if err != nil {
			return err
		}
		d, err := loadDriver(ctx, tx, t.DriverID)
		if err != nil {
			return err
		}
		v.Status = models.VehicleAvailable
		d.Status = models.DriverAvailable
		if err := writeAll(ctx, tx, t, v, d); err != nil {
			return err
		}
		trip = t
		return nil
	})
	if err != nil {
		return nil, s.reject("cancel", err)
	}
	s.committed(ctx, events.TripCancelled, trip, from)
	return trip, nil
}

// Delete removes a draft trip. Trips that were ever dispatched are kept.
func (s *Service) Delete(ctx context.Context, tripID string) error {
	var trip *models.Trip
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := loadTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if t.Status != models.TripDraft {
			return invalidTransitionf("trip %s is %s, only drafts can be deleted", t.ID, t.Status)
		}
		if err := tx.DeleteTrip(ctx, t); err != nil {
			return fmt.Errorf("delete trip %s: %w", t.ID, err)
		}
		trip = t
		return nil
	})
	if err != nil {
		return s.reject("delete", err)
	}
	s.log.WithFields(logrus.Fields{"trip_id": trip.ID, "vehicle_id": trip.VehicleID}).Info("draft trip deleted")
	s.publish(ctx, events.NewTripEvent(events.TripDeleted, trip, models.TripDraft, s.clock()))
	return nil
}

// SendToShop records a maintenance visit and takes the vehicle out of
// rotation. A vehicle on a dispatched trip cannot be sent.
func (s *Service) SendToShop(ctx context.Context, entry *models.MaintenanceLog) (*models.Vehicle, error) {
	if entry.VehicleID == "" {
		return nil, s.reject("send_to_shop", validationf("vehicle_id is required"))
	}
	if entry.Type == "" {
		entry.Type = models.MaintenanceOther
	}
	if !entry.Type.IsValid() {
		return nil, s.reject("send_to_shop", validationf("unknown maintenance type %q", entry.Type))
	}
	if entry.Cost < 0 {
		return nil, s.reject("send_to_shop", validationf("cost must not be negative"))
	}
	now := s.clock()
	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = now.UTC()
	}

	var vehicle *models.Vehicle
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		v, err := loadVehicle(ctx, tx, entry.VehicleID)
		if err != nil {
			return err
		}
		if v.Status == models.VehicleInUse {
			return assignmentf("vehicle %s is on a dispatched trip", v.ID)
		}
		active, err := tx.ListActiveTripsForVehicle(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("list active trips: %w", err)
		}
		for _, t := range active {
			if t.Status == models.TripDispatched {
				return assignmentf("vehicle %s is on dispatched trip %s", v.ID, t.ID)
			}
		}

		if err := tx.InsertMaintenanceLog(ctx, entry); err != nil {
			return fmt.Errorf("insert maintenance log: %w", err)
		}
		v.Status = models.VehicleInShop
		if err := tx.UpdateVehicle(ctx, v); err != nil {
			return fmt.Errorf("update vehicle %s: %w", v.ID, err)
		}
		vehicle = v
		return nil
	})
	if err != nil {
		return nil, s.reject("send_to_shop", err)
	}
	s.log.WithFields(logrus.Fields{"vehicle_id": vehicle.ID, "maintenance_id": entry.ID, "type": entry.Type}).Info("vehicle sent to shop")
	s.publish(ctx, events.NewVehicleEvent(events.VehicleSentToShop, vehicle.ID, now))
	return vehicle, nil
}

// ReleaseFromShop returns an in_shop vehicle to the available pool.
func (s *Service) ReleaseFromShop(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	var vehicle *models.Vehicle
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx db.Tx) error {
		v, err := loadVehicle(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if v.Status != models.VehicleInShop {
			return invalidTransitionf("vehicle %s is %s, not in_shop", v.ID, v.Status)
		}
		v.Status = models.VehicleAvailable
		if err := tx.UpdateVehicle(ctx, v); err != nil {
			return fmt.Errorf("update vehicle %s: %w", v.ID, err)
		}
		vehicle = v
		return nil
	})
	if err != nil {
		return nil, s.reject("release_from_shop", err)
	}
	s.log.WithField("vehicle_id", vehicle.ID).Info("vehicle released from shop")
	s.publish(ctx, events.NewVehicleEvent(events.VehicleReleased, vehicle.ID, s.clock()))
	return vehicle, nil
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// reject turns store conflicts into ErrConflict and records the refusal.
func (s *Service) reject(op string, err error) error {
	var de *Error
	if !errors.As(err, &de) && errors.Is(err, db.ErrVersionConflict) {
		err = &Error{Kind: ErrConflict, Msg: "the trip, vehicle or driver changed concurrently, retry the operation", Err: err}
	}

	kind := "internal"
	if k := KindOf(err); k != nil {
		kind = k.Error()
	}
	observability.TripRejectionsTotal.WithLabelValues(op, kind).Inc()

	entry := s.log.WithError(err).WithField("operation", op)
	if kind == "internal" {
		entry.Error("dispatch operation failed")
	} else {
		entry.Warn("dispatch operation refused")
	}
	return err
}

// committed logs, counts and announces a transition that is already durable.
func (s *Service) committed(ctx context.Context, t events.Type, trip *models.Trip, from models.TripStatus) {
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "none"
	}
	if from != trip.Status {
		observability.TripTransitionsTotal.WithLabelValues(fromLabel, string(trip.Status)).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"trip_id":    trip.ID,
		"vehicle_id": trip.VehicleID,
		"driver_id":  trip.DriverID,
		"from":       fromLabel,
		"to":         trip.Status,
	}).Info("trip " + string(t))
	s.publish(ctx, events.NewTripEvent(t, trip, from, s.clock()))
}

// publish never fails the caller: the state change has already committed.
func (s *Service) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		observability.EventPublishFailures.WithLabelValues(string(e.Type)).Inc()
		s.log.WithError(err).WithFields(logrus.Fields{"event_id": e.ID, "type": e.Type}).Warn("event publish failed")
	}
}

func loadTrip(ctx context.Context, tx db.Tx, id string) (*models.Trip, error) {
	t, err := tx.FindTrip(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFoundf("trip %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find trip %s: %w", id, err)
	}
	return t, nil
}

func loadVehicle(ctx context.Context, tx db.Tx, id string) (*models.Vehicle, error) {
	v, err := tx.FindVehicle(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFoundf("vehicle %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find vehicle %s: %w", id, err)
	}
	return v, nil
}

func loadDriver(ctx context.Context, tx db.Tx, id string) (*models.Driver, error) {
	d, err := tx.FindDriver(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFoundf("driver %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", id, err)
	}
	return d, nil
}

// ensureNoActiveTrip refuses the vehicle when any trip other than exceptID
// still holds it.
func ensureNoActiveTrip(ctx context.Context, tx db.Tx, vehicleID, exceptID string) error {
	active, err := tx.ListActiveTripsForVehicle(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("list active trips: %w", err)
	}
	for _, t := range active {
		if t.ID != exceptID {
			return assignmentf("vehicle %s already has %s trip %s", vehicleID, t.Status, t.ID)
		}
	}
	return nil
}

func writeAll(ctx context.Context, tx db.Tx, t *models.Trip, v *models.Vehicle, d *models.Driver) error {
	if err := tx.UpdateTrip(ctx, t); err != nil {
		return fmt.Errorf("update trip %s: %w", t.ID, err)
	}
	if err := tx.UpdateVehicle(ctx, v); err != nil {
		return fmt.Errorf("update vehicle %s: %w", v.ID, err)
	}
	if err := tx.UpdateDriver(ctx, d); err != nil {
		return fmt.Errorf("update driver %s: %w", d.ID, err)
	}
	return nil
}
