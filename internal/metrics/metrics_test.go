package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.LoginTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.LoginTotal.WithLabelValues(OutcomeInvalid).Add(2)

	expected := `
# HELP tableserve_auth_login_total Login attempts by outcome
# TYPE tableserve_auth_login_total counter
tableserve_auth_login_total{outcome="invalid"} 2
tableserve_auth_login_total{outcome="success"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.LoginTotal, strings.NewReader(expected)))
	assert.Equal(t, 0, testutil.CollectAndCount(m.RegisterTotal))
}

func TestHandler(t *testing.T) {
	m := New()
	m.GateTotal.WithLabelValues(OutcomeExpired).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tableserve_auth_gate_total{outcome="expired"} 1`)
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
