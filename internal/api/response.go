package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/odin-market/progression/internal/progression"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progression.ErrProfileNotFound),
		errors.Is(err, progression.ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, progression.ErrChallengeAlreadyCompleted),
		errors.Is(err, progression.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, progression.ErrConcurrentUpdateExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, progression.ErrInvalidEvent),
		errors.Is(err, progression.ErrInvalidProgress),
		errors.Is(err, progression.ErrUnknownAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageFor keeps internal failures out of response bodies.
func messageFor(status int, err error) string {
	switch status {
	case http.StatusNotFound:
		if errors.Is(err, progression.ErrChallengeNotFound) {
			return "Challenge not found"
		}
		return "Gamification data not found"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}
