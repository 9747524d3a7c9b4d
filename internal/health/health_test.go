package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fwplan/internal/clock"
)

func newChecker(t *testing.T) (*Checker, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	return NewChecker(clk, 5*time.Second), clk
}

func TestChecker_Aggregates(t *testing.T) {
	c, _ := newChecker(t)
	c.Register("ok", FromError(func(context.Context) error { return nil }))
	c.Register("queue", CheckQueue(func() (int, int) { return 4, 4 }))

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "ok", report.Checks["ok"].Name)
	assert.Equal(t, "4/4 queued", report.Checks["queue"].Message)

	c.Register("state", FromError(func(context.Context) error { return errors.New("database is locked") }))
	report = c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "database is locked", report.Checks["state"].Message)
}

func TestChecker_CachesReport(t *testing.T) {
	c, clk := newChecker(t)
	calls := 0
	c.Register("count", func(context.Context) Check {
		calls++
		return Check{Status: StatusHealthy}
	})

	c.Check(context.Background())
	c.Check(context.Background())
	assert.Equal(t, 1, calls)

	clk.Advance(6 * time.Second)
	c.Check(context.Background())
	assert.Equal(t, 2, calls)
}

func TestHandlers(t *testing.T) {
	c, clk := newChecker(t)
	healthy := true
	c.Register("state", FromError(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("closed")
	}))

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	healthy = false
	clk.Advance(time.Minute)

	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health/checks", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)

	rec = httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckDirWritable(t *testing.T) {
	dir := t.TempDir()
	check := CheckDirWritable(dir)(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	check = CheckDirWritable(filepath.Join(dir, "missing"))(context.Background())
	assert.Equal(t, StatusDegraded, check.Status)
}
