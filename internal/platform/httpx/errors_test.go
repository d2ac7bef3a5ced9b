package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("rbac: role 9: %w", shared.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(shared.ErrDuplicateName))
	assert.Equal(t, http.StatusBadRequest, StatusFor(shared.ErrInvalidPermissionKey))
	assert.Equal(t, http.StatusBadRequest, StatusFor(shared.ErrValidation))
	assert.Equal(t, http.StatusForbidden, StatusFor(shared.ErrProtectedRole))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(shared.ErrUnauthenticated))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(shared.ErrStorageUnavailable))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestRespondErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, fmt.Errorf("rbac: %w: \"Dup\"", shared.ErrDuplicateName))

	require.Equal(t, http.StatusConflict, rr.Code)
	var body Failure
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "Dup")
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestOKMergesBody(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, http.StatusCreated, Envelope{"message": "done"})

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "done", body["message"])
	assert.Equal(t, http.StatusCreated, rr.Code)
}
