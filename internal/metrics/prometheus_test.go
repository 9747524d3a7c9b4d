package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_Records(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordDeployment("succeed", 3*time.Second)
	r.RecordDeployment("failed", time.Second)
	r.RecordDeployment("failed", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DeploymentsTotal.WithLabelValues("succeed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.DeploymentsTotal.WithLabelValues("failed")))

	r.RecordPush("r1", 3, 2, nil)
	r.RecordPush("r1", 5, 5, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PushTotal.WithLabelValues("r1", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PushTotal.WithLabelValues("r1", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("r1", "set")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("r1", "delete")))

	r.RecordRollback("r1", errors.New("unreachable"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RollbackTotal.WithLabelValues("r1", "error")))

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.RecordDrift("r2", 4, at)
	assert.Equal(t, 4.0, testutil.ToFloat64(r.DriftOperations.WithLabelValues("r2")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(r.DriftLastCheck.WithLabelValues("r2")))

	r.RecordConfigReload(nil)
	r.RecordConfigReload(errors.New("parse error"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConfigReload.WithLabelValues("error")))

	r.SetUptime(90 * time.Second)
	assert.Equal(t, 90.0, testutil.ToFloat64(r.Uptime))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordDeployment("succeed", time.Second)
		r.RecordFetch("r1", nil)
		r.RecordPush("r1", 1, 1, nil)
		r.RecordRollback("r1", nil)
		r.RecordLivenessFailure("r1")
		r.RecordLockWait("r1", time.Second)
		r.RecordDrift("r1", 0, time.Now())
		r.RecordAPIRequest("GET", "/", 200)
		r.RecordConfigReload(nil)
		r.SetUptime(time.Minute)
	})
}
