package httpapi

import (
	"net/http"
	"strings"

	"zhardem.org/internal/audit"
	"zhardem.org/internal/records"
)

func (a *API) handleRecordCollection(w http.ResponseWriter, r *http.Request, e records.Entity) {
	p, ok := a.requireVerb(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.records.List(r.Context(), e.Name)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{e.Name: list})
	case http.MethodPost:
		var fields map[string]any
		if err := decodeJSON(r, &fields); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed request body")
			return
		}
		id, err := a.records.Create(r.Context(), e.Name, fields, p.Email)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.create", map[string]any{
			"entity":    e.Name,
			"record_id": id,
		})
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRecordResource serves single-record routes. For ownership-scoped
// entities the ownership check is the whole authorization decision here:
// privileged roles pass outright and an owner gets full access to their own
// record whatever the role table says. Entities without an owner column fall
// back to the role×verb table.
func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request, e records.Entity) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/"+e.Name+"/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	if e.OwnershipScoped() {
		if err := a.ownership.Check(r.Context(), e.Name, id, p); err != nil {
			handleRecordsError(w, r, err)
			return
		}
	} else {
		if d := a.auth.Authorize(p.Role, r.Method); !d.Allow {
			writeError(w, r, http.StatusForbidden, d.Reason)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := a.records.Get(r.Context(), e.Name, id)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPut, http.MethodPatch:
		var fields map[string]any
		if err := decodeJSON(r, &fields); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed request body")
			return
		}
		if err := a.records.Update(r.Context(), e.Name, id, fields); err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.update", map[string]any{
			"entity":    e.Name,
			"record_id": id,
		})
		rec, err := a.records.Get(r.Context(), e.Name, id)
		if err != nil {
			handleRecordsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := a.records.Delete(r.Context(), e.Name, id); err != nil {
			handleRecordsError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "records.delete", map[string]any{
			"entity":    e.Name,
			"record_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}
