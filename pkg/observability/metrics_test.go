package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuthzDecision(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordAuthzDecision("milestone", "create", true)
	m.RecordAuthzDecision("milestone", "create", false)
	m.RecordAuthzDecision("milestone", "create", false)

	allowed := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("milestone", "create", "allowed"))
	denied := testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("milestone", "create", "denied"))
	assert.Equal(t, 1.0, allowed)
	assert.Equal(t, 2.0, denied)
}

func TestRecordHTTPRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordHTTPRequest("GET", "/api/v1/milestones", 200, 25*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/milestones", 200, 10*time.Millisecond)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/milestones", "200"))
	assert.Equal(t, 2.0, count)
}

func TestInstrumentHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	handler := m.InstrumentHandler("/api/v1/indicators", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/indicators", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/indicators", "403"))
	assert.Equal(t, 1.0, count)
}
