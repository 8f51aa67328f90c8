package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/taskboard/apierror"
)

const (
	contentTypeJSON = "application/json"
	maxJSONBody     = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": msg} error body.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeError writes the {"error": msg} error body used by the auth views.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFieldErrors writes a 400 keyed by field, optionally wrapped in
// {"error": "Validation failed", "details": {...}}.
func writeFieldErrors(w http.ResponseWriter, fields map[string][]string, wrapped bool) {
	if wrapped {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Validation failed", "details": fields})
		return
	}
	writeJSON(w, http.StatusBadRequest, fields)
}

// writeValidation renders a local validation failure. Anything that is not
// one becomes a 400 detail.
func writeValidation(w http.ResponseWriter, err error, wrapped bool) {
	var verr *apierror.Error
	if errors.As(err, &verr) && verr.Kind == apierror.KindValidation {
		writeFieldErrors(w, verr.Fields, wrapped)
		return
	}
	writeDetail(w, http.StatusBadRequest, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error - "+err.Error())
		return false
	}
	return true
}
