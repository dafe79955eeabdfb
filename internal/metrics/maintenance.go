package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-dispatch/internal/models"
)

type MaintenanceAlerts struct {
	Overdue int `json:"overdue"`
	DueSoon int `json:"due_soon"`
	Total   int `json:"total"`
}

// MaintenanceAlerts counts maintenance entries whose due date has passed
// (before today) or falls within windowDays from today, both ends included.
// Due dates are calendar dates; today is taken in its own location.
func (e *Engine) MaintenanceAlerts(ctx context.Context, today time.Time, windowDays int) (MaintenanceAlerts, error) {
	var a MaintenanceAlerts
	logs, err := e.store.ListMaintenanceLogs(ctx, "")
	if err != nil {
		return a, fmt.Errorf("list maintenance logs: %w", err)
	}
	start := models.Day(today)
	end := start.AddDate(0, 0, windowDays)
	for _, l := range logs {
		if l.DueAt == nil {
			continue
		}
		due := models.Day(*l.DueAt)
		switch {
		case due.Before(start):
			a.Overdue++
		case !due.After(end):
			a.DueSoon++
		}
	}
	a.Total = a.Overdue + a.DueSoon
	return a, nil
}
