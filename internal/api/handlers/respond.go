package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/brain"
	"github.com/wonny/regimelab/backend/internal/macro"
)

// maxBodyBytes caps request bodies (macro history plus return series)
const maxBodyBytes = 8 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeBody decodes a JSON request body, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, brain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, backtest.ErrInsufficientData),
		errors.Is(err, backtest.ErrInvalidInput),
		errors.Is(err, macro.ErrNoData),
		errors.Is(err, macro.ErrMalformedRecord),
		errors.Is(err, macro.ErrUnordered):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
