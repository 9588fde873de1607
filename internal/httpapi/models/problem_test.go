package models_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/httpapi/models"
)

func TestProblem_Write(t *testing.T) {
	p := models.NewNotFound("req_123", "location nope is not configured")
	p.Instance = "/v1/locations/nope"

	rec := httptest.NewRecorder()
	p.Write(rec)

	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_123", rec.Header().Get("X-Request-Id"))

	var decoded models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, models.ProblemTypeNotFound, decoded.Type)
	assert.Equal(t, 404, decoded.Status)
	assert.Equal(t, "req_123", decoded.TraceID)
	assert.Equal(t, "/v1/locations/nope", decoded.Instance)
}

func TestNewBadRequest_FieldErrors(t *testing.T) {
	p := models.NewBadRequest("req_456", "invalid location", []models.FieldError{
		{Field: "Latitude", Message: `failed on the "lte" rule`},
	})

	assert.Equal(t, 400, p.Status)
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "Latitude", p.Errors[0].Field)
}

func TestNewUnsupportedLocation(t *testing.T) {
	p := models.NewUnsupportedLocation("req_789", `region "de" is not supported`)
	assert.Equal(t, 400, p.Status)
	assert.Equal(t, models.ProblemTypeUnsupportedLocation, p.Type)
}
