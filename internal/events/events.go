// Package events publishes trip lifecycle notifications after the store
// transaction that produced them has committed. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

// Type names a lifecycle event. It is also the last topic segment on MQTT.
type Type string

const (
	TripCreated       Type = "created"
	TripUpdated       Type = "updated"
	TripDispatched    Type = "dispatched"
	TripCompleted     Type = "completed"
	TripCancelled     Type = "cancelled"
	TripDeleted       Type = "deleted"
	VehicleSentToShop Type = "vehicle_in_shop"
	VehicleReleased   Type = "vehicle_released"
)

type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	TripID     string            `json:"trip_id,omitempty"`
	VehicleID  string            `json:"vehicle_id"`
	DriverID   string            `json:"driver_id,omitempty"`
	From       models.TripStatus `json:"from,omitempty"`
	To         models.TripStatus `json:"to,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewTripEvent builds an event describing a transition of trip. from is
// empty for creation.
func NewTripEvent(t Type, trip *models.Trip, from models.TripStatus, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		TripID:     trip.ID,
		VehicleID:  trip.VehicleID,
		DriverID:   trip.DriverID,
		From:       from,
		To:         trip.Status,
		OccurredAt: at.UTC(),
	}
}

// NewVehicleEvent builds an event that concerns a vehicle only.
func NewVehicleEvent(t Type, vehicleID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		VehicleID:  vehicleID,
		OccurredAt: at.UTC(),
	}
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
