package models

import "time"

// DriverStatus is the duty state of a driver.
type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverOffDuty   DriverStatus = "off_duty"
	DriverSuspended DriverStatus = "suspended"
)

// DriverStatuses lists every driver status in display order.
var DriverStatuses = []DriverStatus{DriverAvailable, DriverOnTrip, DriverOffDuty, DriverSuspended}

func (s DriverStatus) IsValid() bool {
	switch s {
	case DriverAvailable, DriverOnTrip, DriverOffDuty, DriverSuspended:
		return true
	default:
		return false
	}
}

// Driver represents a licensed driver.
type Driver struct {
	ID               string       `bson:"_id" json:"id"`
	Name             string       `bson:"name" json:"name"`
	LicenseNumber    string       `bson:"license_number" json:"license_number"`
	LicenseExpiresAt time.Time    `bson:"license_expires_at" json:"license_expires_at"`
	Status           DriverStatus `bson:"status" json:"status"`
	Phone            string       `bson:"phone,omitempty" json:"phone,omitempty"`
	Email            string       `bson:"email,omitempty" json:"email,omitempty"`
	Version          int64        `bson:"version" json:"version"`
	CreatedAt        time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `bson:"updated_at" json:"updated_at"`
}

// LicenseValidOn reports whether the license is still valid on the given day.
// Only calendar dates are compared: a license that expires on day d is
// treated as expired on day d itself.
func (d *Driver) LicenseValidOn(now time.Time) bool {
	return Day(d.LicenseExpiresAt).After(Day(now))
}
