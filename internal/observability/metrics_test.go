package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsExist(t *testing.T) {
	assert.NotNil(t, RequestDuration)
	assert.NotNil(t, DatabaseOperations)
	assert.NotNil(t, VerifierRequests)
	assert.NotNil(t, PassOperations)
	assert.NotNil(t, OperationDuration)
	assert.NotNil(t, StoredBytes)
	assert.NotNil(t, AuditEventsDropped)
	assert.NotNil(t, ActiveConnections)
}

func TestPassOperations_Counts(t *testing.T) {
	counter := PassOperations.WithLabelValues("save_pass", "success")
	before := testutil.ToFloat64(counter)

	counter.Inc()
	counter.Inc()

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestVerifierRequests_Outcomes(t *testing.T) {
	for _, outcome := range []string{"registered", "not_registered", "error"} {
		c := VerifierRequests.WithLabelValues(outcome)
		before := testutil.ToFloat64(c)
		c.Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(c), outcome)
	}
}

func TestActiveConnections(t *testing.T) {
	ActiveConnections.Set(10)
	ActiveConnections.Inc()
	ActiveConnections.Dec()
	ActiveConnections.Sub(2)
	assert.Equal(t, float64(8), testutil.ToFloat64(ActiveConnections))
	ActiveConnections.Set(0)
}

func TestHistograms(t *testing.T) {
	RequestDuration.WithLabelValues("/api/accommodation/check", "POST", "200").Observe(0.5)
	RequestDuration.WithLabelValues("/api/accommodation/get", "GET", "404").Observe(0.01)
	OperationDuration.WithLabelValues("save_pass").Observe(0.3)

	assert.Equal(t, 1, testutil.CollectAndCount(OperationDuration, "pass_backend_operation_duration_seconds"))
}
