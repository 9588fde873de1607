// Package response provides helpers for writing JSON API responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pollenwatch/pollenwatch/internal/httpapi/middleware"
	"github.com/pollenwatch/pollenwatch/internal/httpapi/models"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// OK writes a 200 response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with a Location header.
func Created(w http.ResponseWriter, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, http.StatusCreated, data)
}

// Accepted writes a 202 response.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors).Write(w)
}

// UnsupportedLocation writes a 400 problem for a rejected location setup.
func UnsupportedLocation(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnsupportedLocation(middleware.GetRequestID(r.Context()), detail).Write(w)
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewNotFound(middleware.GetRequestID(r.Context()), detail).Write(w)
}

// Conflict writes a 409 problem.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewConflict(middleware.GetRequestID(r.Context()), detail).Write(w)
}

// TooManyRequests writes a 429 problem.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewTooManyRequests(middleware.GetRequestID(r.Context()), detail).Write(w)
}

// InternalError writes a 500 problem.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewInternalError(middleware.GetRequestID(r.Context()), detail).Write(w)
}
