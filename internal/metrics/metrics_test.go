package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Mutation("add")
	m.Mutation("add")
	m.Mutation("clear")
	m.PersistFailed(errors.New("boom"))
	m.Checkout(CheckoutOK)
	m.SetSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CartMutations.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues(CheckoutOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Mutation("add")
		m.PersistFailed(nil)
		m.Checkout(CheckoutError)
		m.SetSessions(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Mutation("toggle")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cart_mutations_total{op="toggle"} 1`)
}
