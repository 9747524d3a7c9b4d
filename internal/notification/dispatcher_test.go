package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/events"
	"grimm.is/fwplan/internal/logging"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type received struct {
	path   string
	header http.Header
	body   []byte
}

// sink records every request and answers with the queued status codes,
// then 200.
type sink struct {
	mu       sync.Mutex
	requests []received
	statuses []int
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, received{path: r.URL.Path, header: r.Header.Clone(), body: body})
	status := http.StatusOK
	if len(s.statuses) > 0 {
		status, s.statuses = s.statuses[0], s.statuses[1:]
	}
	w.WriteHeader(status)
}

func (s *sink) all() []received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]received(nil), s.requests...)
}

func newSink(t *testing.T, statuses ...int) (*sink, string) {
	t.Helper()
	s := &sink{statuses: statuses}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func newDispatcher(channels ...config.NotifyChannel) *Dispatcher {
	return NewDispatcher(channels, logging.Discard(),
		WithRetry(2, time.Millisecond, 5*time.Millisecond),
		WithClock(clock.NewMockClock(now)))
}

func TestSend_Webhook(t *testing.T) {
	s, url := newSink(t)
	d := newDispatcher(config.NotifyChannel{
		Name: "ops", Type: "webhook", URL: url + "/hook", Token: "secret",
		Headers: map[string]string{"X-Team": "netops"},
	})

	require.NoError(t, d.Send(context.Background(), Notification{Title: "t", Message: "m", Level: LevelCritical}))

	reqs := s.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/hook", reqs[0].path)
	assert.Equal(t, "Bearer secret", reqs[0].header.Get("Authorization"))
	assert.Equal(t, "netops", reqs[0].header.Get("X-Team"))
	assert.Contains(t, reqs[0].header.Get("User-Agent"), "fwplan")

	var n Notification
	require.NoError(t, json.Unmarshal(reqs[0].body, &n))
	assert.Equal(t, "t", n.Title)
	assert.True(t, n.Timestamp.Equal(now), "zero timestamp is stamped by the clock")
}

func TestSend_ChatFormats(t *testing.T) {
	s, url := newSink(t)
	d := newDispatcher(
		config.NotifyChannel{Name: "slack", Type: "slack", URL: url + "/slack"},
		config.NotifyChannel{Name: "discord", Type: "discord", URL: url + "/discord"},
		config.NotifyChannel{Name: "push", Type: "ntfy", URL: url + "/", Topic: "fw"},
	)
	require.NoError(t, d.Send(context.Background(), Notification{Title: "Drift", Message: "edge1", Level: LevelWarning}))

	byPath := map[string]received{}
	for _, r := range s.all() {
		byPath[r.path] = r
	}
	require.Len(t, byPath, 3)
	assert.JSONEq(t, `{"text": "*Drift*\nedge1\n_Level: warning_"}`, string(byPath["/slack"].body))
	assert.JSONEq(t, `{"content": "**Drift**\nedge1"}`, string(byPath["/discord"].body))

	push := byPath["/fw"]
	assert.Equal(t, "edge1", string(push.body))
	assert.Equal(t, "Drift", push.header.Get("Title"))
	assert.Equal(t, "warning", push.header.Get("Tags"))
}

func TestSend_LevelFilter(t *testing.T) {
	s, url := newSink(t)
	d := newDispatcher(config.NotifyChannel{Name: "pager", Type: "webhook", URL: url, Level: LevelCritical})

	require.NoError(t, d.Send(context.Background(), Notification{Title: "ok", Level: LevelInfo}))
	assert.Empty(t, s.all())
	require.NoError(t, d.Send(context.Background(), Notification{Title: "bad", Level: LevelCritical}))
	assert.Len(t, s.all(), 1)
}

func TestSend_RetriesServerErrors(t *testing.T) {
	s, url := newSink(t, http.StatusBadGateway, http.StatusServiceUnavailable)
	d := newDispatcher(config.NotifyChannel{Name: "ops", Type: "webhook", URL: url})

	require.NoError(t, d.Send(context.Background(), Notification{Title: "t", Level: LevelCritical}))
	assert.Len(t, s.all(), 3)
}

func TestSend_ClientErrorIsNotRetried(t *testing.T) {
	s, url := newSink(t, http.StatusForbidden)
	d := newDispatcher(config.NotifyChannel{Name: "ops", Type: "webhook", URL: url})

	err := d.Send(context.Background(), Notification{Title: "t", Level: LevelCritical})
	assert.ErrorContains(t, err, "ops: webhook failed with status: 403")
	assert.Len(t, s.all(), 1)
}

func TestUpdateChannels(t *testing.T) {
	s, url := newSink(t)
	d := newDispatcher()
	require.NoError(t, d.Send(context.Background(), Notification{Level: LevelCritical}))

	d.UpdateChannels([]config.NotifyChannel{{Name: "ops", Type: "webhook", URL: url}})
	require.NoError(t, d.Send(context.Background(), Notification{Level: LevelCritical}))
	assert.Len(t, s.all(), 1)
}

func TestFromEvent(t *testing.T) {
	failed, ok := FromEvent(events.Event{
		Type: events.EventDeploymentState,
		Data: events.DeploymentStateData{ID: "d1", State: "failed", Routers: []string{"edge1", "edge2"}, Errors: "push edge2: refused"},
	})
	require.True(t, ok)
	assert.Equal(t, LevelCritical, failed.Level)
	assert.Equal(t, "Deployment d1 failed", failed.Title)
	assert.Contains(t, failed.Message, "push edge2: refused")

	done, ok := FromEvent(events.Event{Data: events.DeploymentStateData{ID: "d2", State: "succeed", Routers: []string{"edge1"}}})
	require.True(t, ok)
	assert.Equal(t, LevelInfo, done.Level)

	_, ok = FromEvent(events.Event{Data: events.DeploymentStateData{ID: "d3", State: "running"}})
	assert.False(t, ok)

	drift, ok := FromEvent(events.Event{Type: events.EventDriftDetected, Data: events.DriftData{Router: "edge1", Operations: 2}})
	require.True(t, ok)
	assert.Equal(t, LevelWarning, drift.Level)
	assert.Equal(t, "Drift detected on edge1", drift.Title)

	_, ok = FromEvent(events.Event{Type: events.EventConfigReloaded, Data: events.ConfigReloadData{}})
	assert.False(t, ok)
}

func TestRun_ForwardsHubEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	hub := events.NewHub(clock.NewMockClock(now))
	d := newDispatcher(config.NotifyChannel{Name: "ops", Type: "webhook", URL: srv.URL, Level: LevelWarning})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, hub)
		close(done)
	}()

	require.Eventually(t, func() bool {
		hub.Publish(events.Event{Type: events.EventDriftDetected, Data: events.DriftData{Router: "edge1", Operations: 1}})
		return hits.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
