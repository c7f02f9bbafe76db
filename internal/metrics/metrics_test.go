package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/core"
)

func TestObserveSave_CountsClients(t *testing.T) {
	m := New()
	st := core.GlobalState{Clients: []core.Client{
		{ID: "1", IsActive: true},
		{ID: "2", IsActive: true},
		{ID: "3"},
		{ID: "4", IsArchived: true},
	}}
	m.ObserveSave(context.Background(), "create", st)
	m.ObserveSave(context.Background(), "create", st)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.saves.WithLabelValues("create")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.clients.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clients.WithLabelValues("inactive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clients.WithLabelValues("archived")))
}

func TestObserveOutcomes(t *testing.T) {
	m := New()
	m.ObserveBackup("drive", nil)
	m.ObserveBackup("drive", errors.New("quota"))
	m.ObserveBridge("run_cmd", nil)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues("drive", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backups.WithLabelValues("drive", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bridgeActions.WithLabelValues("run_cmd", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/state", http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ispledger_http_requests_total{method="GET",route="/api/state",status="200"} 1`), body)
	assert.Contains(t, body, "ispledger_http_request_duration_seconds")
}
