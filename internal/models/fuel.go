package models

import "time"

// FuelLog records one refuelling of a vehicle.
type FuelLog struct {
	ID           string    `json:"id" bson:"_id"`
	VehicleID    string    `json:"vehicle_id" bson:"vehicle_id"`
	TripID       string    `json:"trip_id,omitempty" bson:"trip_id,omitempty"`
	Liters       float64   `json:"liters" bson:"liters"`
	CostPerLiter float64   `json:"cost_per_liter" bson:"cost_per_liter"`
	OdometerKm   *float64  `json:"odometer_km,omitempty" bson:"odometer_km,omitempty"`
	FueledAt     time.Time `json:"fueled_at" bson:"fueled_at"`
	Station      string    `json:"station,omitempty" bson:"station,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// Cost is the money spent on this refuelling.
func (f *FuelLog) Cost() float64 {
	return f.Liters * f.CostPerLiter
}
