// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/polarhub/internal/logging"
	"github.com/tomtom215/polarhub/internal/validation"
)

// errorResponse is the uniform failure body.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError writes the failure body and logs server-side causes.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("message", sanitizeLogValue(message)).Msg("API error")
	}
	respondJSON(w, status, errorResponse{OK: false, Error: message})
}

// decodeBody decodes a size-limited JSON request body into v. Returns a
// client-facing message on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// validateBody runs struct validation, responding 400 on failure. Returns
// true when the payload is valid.
func validateBody(w http.ResponseWriter, v any) bool {
	if verr := validation.ValidateStruct(v); verr != nil {
		respondError(w, http.StatusBadRequest, verr.Message, nil)
		return false
	}
	return true
}

// sanitizeLogValue strips control characters so request-derived strings
// cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
