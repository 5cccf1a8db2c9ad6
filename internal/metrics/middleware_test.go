package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel_ReplacesInvalidChars(t *testing.T) {
	assert.Equal(t, "cache/stats", sanitizeLabel("cache/stats"))
	assert.Equal(t, "reason_layers", sanitizeLabel("reason layers"))
}

func TestSanitizeLabel_CapsLength(t *testing.T) {
	got := sanitizeLabel(strings.Repeat("a", 200))
	assert.Len(t, got, maxLabelLen)
}

func TestSanitizeLabel_EmptyFallback(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeLabel("   "))
	assert.Equal(t, "unknown", sanitizeLabel("$$$"))
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	var inFlight float64
	h := Middleware("POST /v1/test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlight = testutil.ToFloat64(HTTPInFlight)
		w.WriteHeader(http.StatusTeapot)
	}))

	teapots := HTTPRequests.WithLabelValues("POST_/v1/test", "post", "418")
	before := testutil.ToFloat64(teapots)
	observed := testutil.CollectAndCount(HTTPLatency)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/test", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(teapots))
	assert.Equal(t, 1.0, inFlight)
	assert.Zero(t, testutil.ToFloat64(HTTPInFlight))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTPLatency), max(observed, 1))
}

func TestObserveDuration(t *testing.T) {
	before := testutil.CollectAndCount(OperationDuration)
	ObserveDuration("metrics_test_op", 5*time.Millisecond)

	assert.Equal(t, before+1, testutil.CollectAndCount(OperationDuration))
}
