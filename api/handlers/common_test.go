package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-ai/helmsman/types"
)

func TestErrorCodeStatusMapping(t *testing.T) {
	cases := map[types.ErrorCode]int{
		types.ErrInvalidRequest:     http.StatusBadRequest,
		types.ErrUnauthorized:       http.StatusUnauthorized,
		types.ErrNotFound:           http.StatusNotFound,
		types.ErrAgentNotFound:      http.StatusNotFound,
		types.ErrAgentNotSwitchable: http.StatusConflict,
		types.ErrRateLimited:        http.StatusTooManyRequests,
		types.ErrSessionClosed:      http.StatusGone,
		types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
		types.ErrUpstreamError:      http.StatusBadGateway,
		types.ErrSandboxUnavailable: http.StatusServiceUnavailable,
		types.ErrTraceStore:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, mapErrorCodeToHTTPStatus(code), string(code))
	}
}

func TestWriteFromErrorPreservesStructuredCodes(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteFromError(rr, types.NewError(types.ErrSessionClosed, "session closed"), nil)
	assert.Equal(t, http.StatusGone, rr.Code)
	assert.Contains(t, rr.Body.String(), "SESSION_CLOSED")

	rr = httptest.NewRecorder()
	WriteFromError(rr, errors.New("boom"), nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi","bogus":1}`))
	rr := httptest.NewRecorder()

	var dst struct {
		Text string `json:"text"`
	}
	err := DecodeJSONBody(rr, req, &dst, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequireIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	_, ok := RequireIdentity(rr, req, nil)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	owner := newOwner("ada")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithIdentity(req.Context(), owner))
	rr = httptest.NewRecorder()
	got, ok := RequireIdentity(rr, req, nil)
	require.True(t, ok)
	assert.Equal(t, owner.UserID, got.UserID)
}
