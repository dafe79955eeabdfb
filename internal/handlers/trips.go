package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/dispatch"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// TripHandler serves the trip lifecycle endpoints.
type TripHandler struct {
	service *dispatch.Service
	store   db.Reader
	log     logrus.FieldLogger
}

func NewTripHandler(service *dispatch.Service, store db.Reader, log logrus.FieldLogger) *TripHandler {
	return &TripHandler{service: service, store: store, log: log}
}

// Mount mounts the trip routes on r. Reads need view_fleet, every
// lifecycle change needs dispatch_trips.
func (h *TripHandler) Mount(r *mux.Router, guard Guard) {
	r.Handle("/trips", guard.wrap(models.ActionDispatchTrips, h.Create)).Methods(http.MethodPost)
	r.Handle("/trips", guard.wrap(models.ActionViewFleet, h.List)).Methods(http.MethodGet)
	r.Handle("/trips/{id}", guard.wrap(models.ActionViewFleet, h.Get)).Methods(http.MethodGet)
	r.Handle("/trips/{id}", guard.wrap(models.ActionDispatchTrips, h.Update)).Methods(http.MethodPatch)
	r.Handle("/trips/{id}", guard.wrap(models.ActionDispatchTrips, h.Delete)).Methods(http.MethodDelete)
	r.Handle("/trips/{id}/dispatch", guard.wrap(models.ActionDispatchTrips, h.Dispatch)).Methods(http.MethodPost)
	r.Handle("/trips/{id}/complete", guard.wrap(models.ActionDispatchTrips, h.Complete)).Methods(http.MethodPost)
	r.Handle("/trips/{id}/cancel", guard.wrap(models.ActionDispatchTrips, h.Cancel)).Methods(http.MethodPost)
}

func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in dispatch.DraftInput
	if err := decodeJSON(r, &in, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	trip, err := h.service.CreateDraft(r.Context(), in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// List filters by the vehicle_id, driver_id and status query parameters.
// status takes a comma separated list.
func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.TripFilter{VehicleID: q.Get("vehicle_id"), DriverID: q.Get("driver_id")}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.TripStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				badRequest(w, "unknown trip status "+string(status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	trips, err := h.store.ListTrips(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if trips == nil {
		trips = []models.Trip{}
	}
	writeJSON(w, http.StatusOK, trips)
}

func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	trip, err := h.store.FindTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *TripHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch dispatch.DraftPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	trip, err := h.service.UpdateDraft(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *TripHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TripHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	trip, err := h.service.Dispatch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

type completeRequest struct {
	StartOdometer *float64 `json:"start_odometer"`
	EndOdometer   *float64 `json:"end_odometer"`
}

// Complete accepts an optional body carrying both odometer readings.
func (h *TripHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req, true); err != nil {
		badRequest(w, err.Error())
		return
	}
	trip, err := h.service.Complete(r.Context(), mux.Vars(r)["id"], req.StartOdometer, req.EndOdometer)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

func (h *TripHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	trip, err := h.service.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, trip)
}
