package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopvote/internal/domain"
)

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
	}{
		{"not found", domain.NewNotFound("a1"), ErrorTypeNotFound, http.StatusNotFound},
		{"invalid state", domain.NewInvalidState("agenda is %s", domain.StatusFinished), ErrorTypeInvalidState, http.StatusConflict},
		{"duplicate vote", domain.NewDuplicateVote("u1", "a1"), ErrorTypeDuplicateVote, http.StatusConflict},
		{"validation", domain.NewValidation("bad duration"), ErrorTypeValidation, http.StatusBadRequest},
		{"wrapped domain error", fmt.Errorf("cast vote: %w", domain.NewNotFound("a1")), ErrorTypeNotFound, http.StatusNotFound},
		{"domain internal", domain.NewInternal("store", stderrors.New("boom")), ErrorTypeInternal, http.StatusInternalServerError},
		{"plain error", stderrors.New("boom"), ErrorTypeInternal, http.StatusInternalServerError},
		{"app error passthrough", NewRateLimitError("slow down"), ErrorTypeRateLimit, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromDomain(tt.err)
			assert.Equal(t, tt.wantType, appErr.Type)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
		})
	}
}

func TestFromDomain_HidesInternalMessage(t *testing.T) {
	appErr := FromDomain(stderrors.New("connection refused to 10.0.0.3"))
	assert.Equal(t, "internal server error", appErr.Message)
	assert.ErrorContains(t, appErr, "connection refused")
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, NewDuplicateVoteError("user u1 already voted"), "req-1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ErrorTypeDuplicateVote, body.Error.Type)
	assert.Equal(t, "user u1 already voted", body.Error.Message)
	assert.Equal(t, "req-1", body.Error.RequestID)
	assert.NotEmpty(t, body.Error.Timestamp)
}
