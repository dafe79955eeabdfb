package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

func TestEnsureVehicleAssignable(t *testing.T) {
	for _, status := range models.VehicleStatuses {
		err := EnsureVehicleAssignable(&models.Vehicle{ID: "V", Status: status})
		if status == models.VehicleAvailable {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, ErrAssignment, "status %s", status)
	}
}

func TestEnsureDriverAssignable(t *testing.T) {
	now := time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		status  models.DriverStatus
		expires time.Time
		wantErr bool
	}{
		{"valid for a year", models.DriverAvailable, now.AddDate(1, 0, 0), false},
		{"expires tomorrow", models.DriverAvailable, date(2026, 5, 21), false},
		{"expires today", models.DriverAvailable, date(2026, 5, 20), true},
		{"expired yesterday", models.DriverAvailable, date(2026, 5, 19), true},
		{"on trip", models.DriverOnTrip, now.AddDate(1, 0, 0), true},
		{"off duty", models.DriverOffDuty, now.AddDate(1, 0, 0), true},
		{"suspended", models.DriverSuspended, now.AddDate(1, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EnsureDriverAssignable(&models.Driver{ID: "D", Status: tt.status, LicenseExpiresAt: tt.expires}, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAssignment)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureDriverAssignable_DayUsesCallerTimezone(t *testing.T) {
	// 23:30 on the 20th in UTC-5 is already the 21st in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 5, 20, 23, 30, 0, 0, loc)
	d := &models.Driver{ID: "D", Status: models.DriverAvailable, LicenseExpiresAt: time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC)}

	assert.NoError(t, EnsureDriverAssignable(d, now))
	assert.ErrorIs(t, EnsureDriverAssignable(d, now.UTC()), ErrAssignment)
}

func TestValidateCargoWeight(t *testing.T) {
	v := &models.Vehicle{ID: "V", CapacityKg: 5000}

	assert.NoError(t, ValidateCargoWeight(v, 0))
	assert.NoError(t, ValidateCargoWeight(v, 5000))
	assert.ErrorIs(t, ValidateCargoWeight(v, 5000.01), ErrCapacityExceeded)
	assert.ErrorIs(t, ValidateCargoWeight(v, -1), ErrCapacityExceeded)
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Kind: ErrConflict, Msg: "retry", Err: cause}

	assert.Equal(t, "concurrent modification: retry", err.Error())
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrConflict, KindOf(err))
	assert.Nil(t, KindOf(cause))
	assert.Equal(t, "not found", (&Error{Kind: ErrNotFound}).Error())
}
