package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/dispatch"
	"github.com/ukydev/fleet-dispatch/internal/models"
)

// RegistryStore is what the registry endpoints read and insert through.
type RegistryStore interface {
	db.Reader
	db.Registry
}

// RegistryHandler serves vehicles, drivers, fuel logs and maintenance.
// Status changes caused by maintenance go through the dispatch service.
type RegistryHandler struct {
	store   RegistryStore
	service *dispatch.Service
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewRegistryHandler(store RegistryStore, service *dispatch.Service, log logrus.FieldLogger) *RegistryHandler {
	return &RegistryHandler{store: store, service: service, log: log, now: time.Now}
}

func (h *RegistryHandler) Mount(r *mux.Router, guard Guard) {
	r.Handle("/vehicles", guard.wrap(models.ActionManageVehicles, h.CreateVehicle)).Methods(http.MethodPost)
	r.Handle("/vehicles", guard.wrap(models.ActionViewFleet, h.ListVehicles)).Methods(http.MethodGet)
	r.Handle("/vehicles/{id}", guard.wrap(models.ActionViewFleet, h.GetVehicle)).Methods(http.MethodGet)
	r.Handle("/vehicles/{id}/release", guard.wrap(models.ActionManageMaintenance, h.ReleaseVehicle)).Methods(http.MethodPost)
	r.Handle("/drivers", guard.wrap(models.ActionManageDrivers, h.CreateDriver)).Methods(http.MethodPost)
	r.Handle("/drivers", guard.wrap(models.ActionViewFleet, h.ListDrivers)).Methods(http.MethodGet)
	r.Handle("/fuel-logs", guard.wrap(models.ActionManageFuel, h.CreateFuelLog)).Methods(http.MethodPost)
	r.Handle("/fuel-logs", guard.wrap(models.ActionViewFleet, h.ListFuelLogs)).Methods(http.MethodGet)
	r.Handle("/maintenance", guard.wrap(models.ActionManageMaintenance, h.CreateMaintenance)).Methods(http.MethodPost)
	r.Handle("/maintenance", guard.wrap(models.ActionViewFleet, h.ListMaintenance)).Methods(http.MethodGet)
}

type vehicleRequest struct {
	PlateNumber     string               `json:"plate_number"`
	Make            string               `json:"make"`
	Model           string               `json:"model"`
	Year            int                  `json:"year"`
	CapacityKg      float64              `json:"capacity_kg"`
	AcquisitionCost float64              `json:"acquisition_cost"`
	OdometerKm      float64              `json:"odometer_km"`
	Status          models.VehicleStatus `json:"status"`
}

func (req vehicleRequest) validate() error {
	switch {
	case strings.TrimSpace(req.PlateNumber) == "":
		return fmt.Errorf("plate_number is required")
	case req.CapacityKg <= 0:
		return fmt.Errorf("capacity_kg must be positive")
	case req.AcquisitionCost < 0:
		return fmt.Errorf("acquisition_cost must not be negative")
	case req.OdometerKm < 0:
		return fmt.Errorf("odometer_km must not be negative")
	}
	// in_use and in_shop are only reached through trips and maintenance.
	switch req.Status {
	case "", models.VehicleAvailable, models.VehicleOutOfService:
		return nil
	}
	return fmt.Errorf("a new vehicle must be available or out_of_service")
}

func (h *RegistryHandler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	v := &models.Vehicle{
		PlateNumber:     strings.TrimSpace(req.PlateNumber),
		Make:            req.Make,
		Model:           req.Model,
		Year:            req.Year,
		Status:          req.Status,
		CapacityKg:      req.CapacityKg,
		AcquisitionCost: req.AcquisitionCost,
		OdometerKm:      req.OdometerKm,
	}
	if v.Status == "" {
		v.Status = models.VehicleAvailable
	}
	if err := h.store.InsertVehicle(r.Context(), v); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithFields(logrus.Fields{"vehicle_id": v.ID, "plate_number": v.PlateNumber}).Info("vehicle registered")
	writeJSON(w, http.StatusCreated, v)
}

func (h *RegistryHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.store.ListVehicles(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if status := models.VehicleStatus(r.URL.Query().Get("status")); status != "" {
		if !status.IsValid() {
			badRequest(w, "unknown vehicle status "+string(status))
			return
		}
		kept := vehicles[:0]
		for _, v := range vehicles {
			if v.Status == status {
				kept = append(kept, v)
			}
		}
		vehicles = kept
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (h *RegistryHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.FindVehicle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *RegistryHandler) ReleaseVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.ReleaseFromShop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type driverRequest struct {
	Name             string              `json:"name"`
	LicenseNumber    string              `json:"license_number"`
	LicenseExpiresAt *flexTime           `json:"license_expires_at"`
	Status           models.DriverStatus `json:"status"`
	Phone            string              `json:"phone"`
	Email            string              `json:"email"`
}

func (req driverRequest) validate() error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("name is required")
	case strings.TrimSpace(req.LicenseNumber) == "":
		return fmt.Errorf("license_number is required")
	case req.LicenseExpiresAt == nil:
		return fmt.Errorf("license_expires_at is required")
	}
	switch req.Status {
	case "", models.DriverAvailable, models.DriverOffDuty, models.DriverSuspended:
		return nil
	}
	return fmt.Errorf("a new driver must be available, off_duty or suspended")
}

func (h *RegistryHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req driverRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	d := &models.Driver{
		Name:             strings.TrimSpace(req.Name),
		LicenseNumber:    strings.TrimSpace(req.LicenseNumber),
		LicenseExpiresAt: req.LicenseExpiresAt.Time,
		Status:           req.Status,
		Phone:            req.Phone,
		Email:            req.Email,
	}
	if d.Status == "" {
		d.Status = models.DriverAvailable
	}
	if err := h.store.InsertDriver(r.Context(), d); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithField("driver_id", d.ID).Info("driver registered")
	writeJSON(w, http.StatusCreated, d)
}

func (h *RegistryHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	writeJSON(w, http.StatusOK, drivers)
}

type fuelLogRequest struct {
	VehicleID    string    `json:"vehicle_id"`
	TripID       string    `json:"trip_id"`
	Liters       float64   `json:"liters"`
	CostPerLiter float64   `json:"cost_per_liter"`
	OdometerKm   *float64  `json:"odometer_km"`
	FueledAt     *flexTime `json:"fueled_at"`
	Station      string    `json:"station"`
}

func (req fuelLogRequest) validate() error {
	switch {
	case req.VehicleID == "":
		return fmt.Errorf("vehicle_id is required")
	case req.Liters <= 0:
		return fmt.Errorf("liters must be positive")
	case req.CostPerLiter < 0:
		return fmt.Errorf("cost_per_liter must not be negative")
	case req.OdometerKm != nil && *req.OdometerKm < 0:
		return fmt.Errorf("odometer_km must not be negative")
	}
	return nil
}

// CreateFuelLog records a refuelling. A linked trip must belong to the same
// vehicle.
func (h *RegistryHandler) CreateFuelLog(w http.ResponseWriter, r *http.Request) {
	var req fuelLogRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.checkFuelLinks(r.Context(), req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	f := &models.FuelLog{
		VehicleID:    req.VehicleID,
		TripID:       req.TripID,
		Liters:       req.Liters,
		CostPerLiter: req.CostPerLiter,
		OdometerKm:   req.OdometerKm,
		Station:      req.Station,
	}
	if at := req.FueledAt.ptr(); at != nil {
		f.FueledAt = at.UTC()
	} else {
		f.FueledAt = h.now().UTC()
	}
	if err := h.store.InsertFuelLog(r.Context(), f); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *RegistryHandler) checkFuelLinks(ctx context.Context, req fuelLogRequest) error {
	if _, err := h.store.FindVehicle(ctx, req.VehicleID); err != nil {
		return fmt.Errorf("vehicle %s: %w", req.VehicleID, err)
	}
	if req.TripID == "" {
		return nil
	}
	trip, err := h.store.FindTrip(ctx, req.TripID)
	if err != nil {
		return fmt.Errorf("trip %s: %w", req.TripID, err)
	}
	if trip.VehicleID != req.VehicleID {
		return &dispatch.Error{Kind: dispatch.ErrValidation, Msg: fmt.Sprintf("trip %s does not belong to vehicle %s", trip.ID, req.VehicleID)}
	}
	return nil
}

func (h *RegistryHandler) ListFuelLogs(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseWindow(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	logs, err := h.store.ListFuelLogs(r.Context(), r.URL.Query().Get("vehicle_id"), from, to)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if logs == nil {
		logs = []models.FuelLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

type maintenanceRequest struct {
	VehicleID   string                 `json:"vehicle_id"`
	Type        models.MaintenanceType `json:"type"`
	Description string                 `json:"description"`
	Cost        float64                `json:"cost"`
	PerformedAt *flexTime              `json:"performed_at"`
	DueAt       *flexTime              `json:"due_at"`
	Vendor      string                 `json:"vendor"`
}

type maintenanceResponse struct {
	Maintenance *models.MaintenanceLog `json:"maintenance"`
	Vehicle     *models.Vehicle        `json:"vehicle"`
}

// CreateMaintenance logs a shop visit, which moves the vehicle to in_shop.
func (h *RegistryHandler) CreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	entry := &models.MaintenanceLog{
		VehicleID:   req.VehicleID,
		Type:        req.Type,
		Description: req.Description,
		Cost:        req.Cost,
		DueAt:       req.DueAt.ptr(),
		Vendor:      req.Vendor,
	}
	if at := req.PerformedAt.ptr(); at != nil {
		entry.PerformedAt = at.UTC()
	}
	v, err := h.service.SendToShop(r.Context(), entry)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, maintenanceResponse{Maintenance: entry, Vehicle: v})
}

func (h *RegistryHandler) ListMaintenance(w http.ResponseWriter, r *http.Request) {
	logs, err := h.store.ListMaintenanceLogs(r.Context(), r.URL.Query().Get("vehicle_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if logs == nil {
		logs = []models.MaintenanceLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
