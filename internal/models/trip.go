package models

import "time"

// TripStatus is a state of the trip lifecycle.
type TripStatus string

const (
	TripDraft      TripStatus = "draft"
	TripDispatched TripStatus = "dispatched"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// TripStatuses lists every trip status in lifecycle order.
var TripStatuses = []TripStatus{TripDraft, TripDispatched, TripCompleted, TripCancelled}

// allowedTransitions is the single source of truth for the trip lifecycle.
var allowedTransitions = map[TripStatus][]TripStatus{
	TripDraft:      {TripDispatched, TripCancelled},
	TripDispatched: {TripCompleted, TripCancelled},
	TripCompleted:  nil,
	TripCancelled:  nil,
}

func (s TripStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s TripStatus) IsTerminal() bool {
	return s.IsValid() && len(allowedTransitions[s]) == 0
}

// IsActive reports whether a trip in state s still holds its vehicle.
func (s TripStatus) IsActive() bool {
	return s == TripDraft || s == TripDispatched
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to TripStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the states reachable from s in one step.
func NextStatuses(s TripStatus) []TripStatus {
	next := allowedTransitions[s]
	out := make([]TripStatus, len(next))
	copy(out, next)
	return out
}

// Trip represents a single cargo movement assigning one vehicle and one driver.
type Trip struct {
	ID            string     `json:"id" bson:"_id"`
	Status        TripStatus `json:"status" bson:"status"`
	VehicleID     string     `json:"vehicle_id" bson:"vehicle_id"`
	DriverID      string     `json:"driver_id" bson:"driver_id"`
	Origin        string     `json:"origin" bson:"origin"`
	Destination   string     `json:"destination" bson:"destination"`
	CargoWeightKg float64    `json:"cargo_weight_kg" bson:"cargo_weight_kg"`
	DistanceKm    float64    `json:"distance_km" bson:"distance_km"`
	Revenue       float64    `json:"revenue" bson:"revenue"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty" bson:"dispatched_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	StartOdometer *float64   `json:"start_odometer,omitempty" bson:"start_odometer,omitempty"`
	EndOdometer   *float64   `json:"end_odometer,omitempty" bson:"end_odometer,omitempty"`
	Notes         string     `json:"notes,omitempty" bson:"notes,omitempty"`
	Version       int64      `json:"version" bson:"version"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
}

// CanTransitionTo reports whether the trip may move to status next.
func (t *Trip) CanTransitionTo(next TripStatus) bool {
	return CanTransition(t.Status, next)
}
