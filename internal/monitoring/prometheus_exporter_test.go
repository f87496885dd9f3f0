package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/clock"
)

func TestCollectMetrics_MirrorsThrottle(t *testing.T) {
	th := alert.NewThrottle(clock.Fake(time.Now()), alert.Policy{Cap: 1, Window: time.Hour}, nil)
	th.ShouldAlert(alert.CategoryAccessibility)
	th.ShouldAlert(alert.CategoryAccessibility)
	th.ShouldAlert(alert.CategoryAccessibility)

	NewPrometheusExporter(th).CollectMetrics()

	assert.Equal(t, 2.0, testutil.ToFloat64(ThrottleSuppressed.WithLabelValues(alert.CategoryAccessibility)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ThrottleSaturated.WithLabelValues(alert.CategoryAccessibility)))
	assert.Equal(t, 0.0, testutil.ToFloat64(ThrottleSaturated.WithLabelValues(alert.CategoryGeneral)))
}

func TestRecordAlert(t *testing.T) {
	before := testutil.ToFloat64(AlertsTotal.WithLabelValues("error", "suppressed"))
	RecordAlert("error", false)
	assert.Equal(t, before+1, testutil.ToFloat64(AlertsTotal.WithLabelValues("error", "suppressed")))
}
