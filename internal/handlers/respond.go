// Package handlers exposes the dispatch, registry and analytics operations
// over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/dispatch"
	"github.com/ukydev/fleet-dispatch/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Guard returns the middleware that admits callers allowed to perform
// action. A nil Guard admits everyone.
type Guard func(action string) func(http.Handler) http.Handler

func (g Guard) wrap(action string, h http.HandlerFunc) http.Handler {
	if g == nil {
		return h
	}
	return g(action)(h)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a dispatch error kind, or a bare store lookup miss, to an
// HTTP status.
func statusFor(err error) int {
	switch dispatch.KindOf(err) {
	case dispatch.ErrNotFound:
		return http.StatusNotFound
	case dispatch.ErrInvalidTransition, dispatch.ErrConflict:
		return http.StatusConflict
	case dispatch.ErrAssignment, dispatch.ErrCapacityExceeded, dispatch.ErrOdometerConsistency:
		return http.StatusUnprocessableEntity
	case dispatch.ErrValidation:
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrVersionConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Internal failures are logged and
// their detail is kept from the client.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if k := dispatch.KindOf(err); k != nil {
		resp.Kind = k.Error()
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		}).Error("request failed")
		resp.Error = "internal error"
	}
	if status == http.StatusNotFound && dispatch.KindOf(err) == nil {
		resp.Error = "not found"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decodeJSON reads a single JSON object from the body. Unknown fields are
// rejected. An empty body is an error unless allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// parseTimeParam reads an optional time query parameter.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: expected RFC 3339 time or YYYY-MM-DD date", name)
	}
	return &t, nil
}

// flexTime is a JSON time that also accepts a bare date.
type flexTime struct{ time.Time }

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := parseTime(raw)
	if err != nil {
		return fmt.Errorf("expected RFC 3339 time or YYYY-MM-DD date, got %q", raw)
	}
	t.Time = parsed
	return nil
}

func (t *flexTime) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

func parseWindow(r *http.Request) (from, to *time.Time, err error) {
	if from, err = parseTimeParam(r, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = parseTimeParam(r, "to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, errors.New("to must not be before from")
	}
	return from, to, nil
}
