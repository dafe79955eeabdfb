package models

import "time"

// VehicleStatus is the availability state of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "available"
	VehicleInUse        VehicleStatus = "in_use"
	VehicleInShop       VehicleStatus = "in_shop"
	VehicleOutOfService VehicleStatus = "out_of_service"
)

// VehicleStatuses lists every vehicle status in display order.
var VehicleStatuses = []VehicleStatus{VehicleAvailable, VehicleInUse, VehicleInShop, VehicleOutOfService}

// IsValid reports whether s is a known vehicle status.
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleAvailable, VehicleInUse, VehicleInShop, VehicleOutOfService:
		return true
	default:
		return false
	}
}

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	ID              string        `bson:"_id" json:"id"`
	PlateNumber     string        `bson:"plate_number" json:"plate_number"`
	Make            string        `bson:"make" json:"make"`
	Model           string        `bson:"model" json:"model"`
	Year            int           `bson:"year" json:"year"`
	Status          VehicleStatus `bson:"status" json:"status"`
	CapacityKg      float64       `bson:"capacity_kg" json:"capacity_kg"`
	AcquisitionCost float64       `bson:"acquisition_cost" json:"acquisition_cost"`
	OdometerKm      float64       `bson:"odometer_km" json:"odometer_km"`
	Version         int64         `bson:"version" json:"version"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}
