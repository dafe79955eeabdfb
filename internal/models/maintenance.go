package models

import "time"

// MaintenanceType classifies a maintenance log entry.
type MaintenanceType string

const (
	MaintenanceOilChange    MaintenanceType = "oil_change"
	MaintenanceRepair       MaintenanceType = "repair"
	MaintenanceInspection   MaintenanceType = "inspection"
	MaintenanceTireRotation MaintenanceType = "tire_rotation"
	MaintenanceOther        MaintenanceType = "other"
)

func (t MaintenanceType) IsValid() bool {
	switch t {
	case MaintenanceOilChange, MaintenanceRepair, MaintenanceInspection, MaintenanceTireRotation, MaintenanceOther:
		return true
	default:
		return false
	}
}

// MaintenanceLog represents a vehicle maintenance record.
type MaintenanceLog struct {
	ID          string          `json:"id" bson:"_id"`
	VehicleID   string          `json:"vehicle_id" bson:"vehicle_id"`
	Type        MaintenanceType `json:"type" bson:"type"`
	Description string          `json:"description,omitempty" bson:"description,omitempty"`
	Cost        float64         `json:"cost" bson:"cost"`
	PerformedAt time.Time       `json:"performed_at" bson:"performed_at"`
	DueAt       *time.Time      `json:"due_at,omitempty" bson:"due_at,omitempty"`
	Vendor      string          `json:"vendor,omitempty" bson:"vendor,omitempty"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}
