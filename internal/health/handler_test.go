package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	h := NewHandler(pinger{}, nil, time.Now().Add(-time.Minute))
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Database.Reachable)
	assert.GreaterOrEqual(t, resp.UptimeSec, int64(59))
}

func TestReadyDegraded(t *testing.T) {
	h := NewHandler(pinger{err: errors.New("connection refused")}, nil, time.Time{})
	rec := httptest.NewRecorder()
	h.Diagnostics(rec, httptest.NewRequest(http.MethodGet, "/internal/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var d diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "degraded", d.Status)
	assert.Equal(t, "connection refused", d.Database.Error)
	assert.NotEmpty(t, d.GoVersion)
	assert.Nil(t, d.Pool)
}
