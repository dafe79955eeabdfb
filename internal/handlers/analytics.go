package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/metrics"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// AnalyticsHandler serves the derived fleet metrics. Every metric may be
// null when there is not enough data to compute it.
type AnalyticsHandler struct {
	engine      *metrics.Engine
	store       db.Reader
	log         logrus.FieldLogger
	now         func() time.Time
	loc         *time.Location
	dueSoonDays int
}

func NewAnalyticsHandler(store db.Reader, loc *time.Location, dueSoonDays int, log logrus.FieldLogger) *AnalyticsHandler {
	if loc == nil {
		loc = time.UTC
	}
	if dueSoonDays < 0 {
		dueSoonDays = metrics.DefaultDueSoonDays
	}
	return &AnalyticsHandler{
		engine:      metrics.NewEngine(store),
		store:       store,
		log:         log,
		now:         time.Now,
		loc:         loc,
		dueSoonDays: dueSoonDays,
	}
}

func (h *AnalyticsHandler) Mount(r *mux.Router, guard Guard) {
	r.Handle("/analytics/fuel-efficiency", guard.wrap(models.ActionViewAnalytics, h.FuelEfficiency)).Methods(http.MethodGet)
	r.Handle("/analytics/roi", guard.wrap(models.ActionViewAnalytics, h.ROI)).Methods(http.MethodGet)
	r.Handle("/analytics/cost-per-km", guard.wrap(models.ActionViewAnalytics, h.CostPerKm)).Methods(http.MethodGet)
	r.Handle("/analytics/vehicles/{id}", guard.wrap(models.ActionViewAnalytics, h.VehicleReport)).Methods(http.MethodGet)
	r.Handle("/dashboard", guard.wrap(models.ActionViewFleet, h.Dashboard)).Methods(http.MethodGet)
}

type vehicleMetric struct {
	VehicleID string   `json:"vehicle_id"`
	Value     *float64 `json:"value"`
}

type fleetMetric struct {
	Vehicles map[string]*float64 `json:"vehicles"`
}

// FuelEfficiency answers km per liter for ?vehicle_id=, or for every vehicle
// when it is absent. from and to bound the fuel logs considered.
func (h *AnalyticsHandler) FuelEfficiency(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	h.serveMetric(w, r,
		func(ctx context.Context, id string) (*float64, error) {
			if _, err := h.store.FindVehicle(ctx, id); err != nil {
				return nil, err
			}
			return h.engine.FuelEfficiency(ctx, id, from, to)
		},
		func(ctx context.Context) (map[string]*float64, error) {
			return h.engine.FleetFuelEfficiency(ctx, from, to)
		})
}

func (h *AnalyticsHandler) ROI(w http.ResponseWriter, r *http.Request) {
	h.serveMetric(w, r, h.engine.VehicleROI, h.engine.FleetROI)
}

func (h *AnalyticsHandler) CostPerKm(w http.ResponseWriter, r *http.Request) {
	h.serveMetric(w, r,
		func(ctx context.Context, id string) (*float64, error) {
			if _, err := h.store.FindVehicle(ctx, id); err != nil {
				return nil, err
			}
			return h.engine.CostPerKm(ctx, id)
		},
		h.engine.FleetCostPerKm)
}

func (h *AnalyticsHandler) serveMetric(
	w http.ResponseWriter, r *http.Request,
	one func(ctx context.Context, vehicleID string) (*float64, error),
	fleet func(ctx context.Context) (map[string]*float64, error),
) {
	if id := r.URL.Query().Get("vehicle_id"); id != "" {
		v, err := one(r.Context(), id)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, vehicleMetric{VehicleID: id, Value: v})
		return
	}
	all, err := fleet(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fleetMetric{Vehicles: all})
}

func (h *AnalyticsHandler) VehicleReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	report, err := h.engine.VehicleReport(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Dashboard is computed for the current calendar day in the fleet timezone.
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Dashboard(r.Context(), h.now().In(h.loc), h.dueSoonDays)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
