package dispatch

import (
	"time"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

// EnsureVehicleAssignable refuses any vehicle that is not available.
func EnsureVehicleAssignable(v *models.Vehicle) error {
	if v.Status != models.VehicleAvailable {
		return assignmentf("vehicle %s is %s", v.ID, v.Status)
	}
	return nil
}

// EnsureDriverAssignable refuses drivers that are not available or whose
// license is not valid past the calendar day of now.
func EnsureDriverAssignable(d *models.Driver, now time.Time) error {
	if d.Status != models.DriverAvailable {
		return assignmentf("driver %s is %s", d.ID, d.Status)
	}
	if !d.LicenseValidOn(now) {
		return assignmentf("driver %s license expired on %s", d.ID, d.LicenseExpiresAt.Format(time.DateOnly))
	}
	return nil
}

// ValidateCargoWeight refuses cargo heavier than the vehicle can carry.
func ValidateCargoWeight(v *models.Vehicle, cargoKg float64) error {
	if cargoKg < 0 {
		return newError(ErrCapacityExceeded, "cargo weight %.2f kg is negative", cargoKg)
	}
	if cargoKg > v.CapacityKg {
		return newError(ErrCapacityExceeded, "cargo %.2f kg exceeds vehicle %s capacity of %.2f kg", cargoKg, v.ID, v.CapacityKg)
	}
	return nil
}

// checkAssignment runs every guard against the final vehicle, driver and cargo.
func checkAssignment(v *models.Vehicle, d *models.Driver, cargoKg float64, now time.Time) error {
	if err := EnsureVehicleAssignable(v); err != nil {
		return err
	}
	if err := EnsureDriverAssignable(d, now); err != nil {
		return err
	}
	return ValidateCargoWeight(v, cargoKg)
}
