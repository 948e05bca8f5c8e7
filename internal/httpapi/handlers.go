package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"zhardem.org/internal/auth"
	"zhardem.org/internal/obs"
	"zhardem.org/internal/records"
)

type errorPayload struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Logger().Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorPayload{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A body must contain exactly one JSON document.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.probe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.probe(ctx); err != nil {
			obs.Logger().Warn().Err(err).Msg("readiness probe failed")
			writeError(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "zhardem-api",
		"version": a.version,
	})
}

// handleAuthError maps subsystem sentinels onto HTTP statuses. Unknown
// errors are logged server-side and surface as an opaque 500.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *auth.LockedError
	switch {
	case errors.As(err, &locked):
		writeError(w, r, http.StatusForbidden,
			fmt.Sprintf("account locked, try again in %d minutes", locked.RemainingMinutes))
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrPendingApproval):
		writeError(w, r, http.StatusForbidden, "account awaiting admin approval")
	case errors.Is(err, auth.ErrRejected):
		writeError(w, r, http.StatusForbidden, "account rejected by admin")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, auth.ErrDependentRecords):
		writeError(w, r, http.StatusBadRequest, "deletion blocked by dependent records")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	default:
		obs.Logger().Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleRecordsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, records.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, records.ErrConflict):
		writeError(w, r, http.StatusConflict, "already exists")
	case errors.Is(err, records.ErrDependentRecords):
		writeError(w, r, http.StatusBadRequest, "deletion blocked by dependent records")
	case errors.Is(err, records.ErrInvalidField), errors.Is(err, records.ErrUnknownEntity):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	default:
		obs.Logger().Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
