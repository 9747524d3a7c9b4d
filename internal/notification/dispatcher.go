// Package notification sends deployment and drift notices to chat and push
// services configured in notify blocks.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"grimm.is/fwplan/internal/brand"
	"grimm.is/fwplan/internal/clock"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/events"
	"grimm.is/fwplan/internal/logging"
)

// Level constants
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

var levels = map[string]int{
	LevelInfo:     1,
	LevelWarning:  2,
	LevelCritical: 3,
}

// Notification represents a notification event
type Notification struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher sends notifications to every channel whose level they meet.
// Failed sends are retried with backoff.
type Dispatcher struct {
	client *retryablehttp.Client
	clock  clock.Clock
	logger *logging.Logger

	mu       sync.RWMutex
	channels []config.NotifyChannel
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetry sets the retry count and the minimum and maximum backoff.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(d *Dispatcher) {
		d.client.RetryMax = max
		d.client.RetryWaitMin = waitMin
		d.client.RetryWaitMax = waitMax
	}
}

// WithClock sets the clock used to stamp notifications.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// NewDispatcher creates a dispatcher for channels.
func NewDispatcher(channels []config.NotifyChannel, logger *logging.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("notification")

	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.HTTPClient.Timeout = 10 * time.Second
	client.RetryMax = 3
	client.Logger = logger

	d := &Dispatcher{
		client:   client,
		clock:    &clock.RealClock{},
		logger:   logger,
		channels: channels,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UpdateChannels replaces the channel list, for configuration reloads.
func (d *Dispatcher) UpdateChannels(channels []config.NotifyChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = channels
}

// Send dispatches n to all relevant channels concurrently and returns the
// joined send errors.
func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	d.mu.RLock()
	channels := d.channels
	d.mu.RUnlock()

	if n.Timestamp.IsZero() {
		n.Timestamp = d.clock.Now()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ch := range channels {
		if !shouldSend(n.Level, ch.Level) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.sendToChannel(ctx, ch, n); err != nil {
				d.logger.Error("failed to send notification", "channel", ch.Name, "type", ch.Type, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run sends a notification for every relevant hub event until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, hub *events.Hub) {
	ch := hub.Subscribe(64, events.EventDeploymentState, events.EventDriftDetected)
	defer hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if n, ok := FromEvent(e); ok {
				d.Send(ctx, n)
			}
		}
	}
}

// FromEvent maps a hub event to a notification. Only finished deployments
// and detected drift are worth telling anyone about.
func FromEvent(e events.Event) (Notification, bool) {
	switch data := e.Data.(type) {
	case events.DeploymentStateData:
		n := Notification{
			Timestamp: e.Timestamp,
			Data: map[string]any{
				"deployment": data.ID,
				"routers":    data.Routers,
			},
		}
		routers := strings.Join(data.Routers, ", ")
		switch data.State {
		case "succeed":
			n.Level = LevelInfo
			n.Title = fmt.Sprintf("Deployment %s succeeded", data.ID)
			n.Message = "Deployed to " + routers
		case "failed":
			n.Level = LevelCritical
			n.Title = fmt.Sprintf("Deployment %s failed", data.ID)
			n.Message = fmt.Sprintf("Routers: %s\n%s", routers, data.Errors)
		default:
			return Notification{}, false
		}
		return n, true

	case events.DriftData:
		return Notification{
			Level:     LevelWarning,
			Title:     fmt.Sprintf("Drift detected on %s", data.Router),
			Message:   fmt.Sprintf("%d operation(s) would restore the deployed configuration", data.Operations),
			Timestamp: e.Timestamp,
			Data:      map[string]any{"router": data.Router, "operations": data.Operations},
		}, true
	}
	return Notification{}, false
}

// shouldSend checks if a message level meets the channel's minimum level
func shouldSend(msgLevel, chanLevel string) bool {
	if chanLevel == "" {
		return true
	}
	return levels[strings.ToLower(msgLevel)] >= levels[strings.ToLower(chanLevel)]
}

func (d *Dispatcher) sendToChannel(ctx context.Context, ch config.NotifyChannel, n Notification) error {
	switch strings.ToLower(ch.Type) {
	case "webhook":
		return d.post(ctx, ch, ch.URL, "application/json", mustJSON(n))
	case "slack":
		payload := map[string]any{
			"text": fmt.Sprintf("*%s*\n%s\n_Level: %s_", n.Title, n.Message, n.Level),
		}
		return d.post(ctx, ch, ch.URL, "application/json", mustJSON(payload))
	case "discord":
		payload := map[string]any{
			"content": fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
		}
		return d.post(ctx, ch, ch.URL, "application/json", mustJSON(payload))
	case "ntfy":
		if ch.Topic == "" {
			return fmt.Errorf("missing topic for ntfy")
		}
		return d.post(ctx, ch, strings.TrimSuffix(ch.URL, "/")+"/"+ch.Topic, "text/plain", []byte(n.Message), func(h http.Header) {
			h.Set("Title", n.Title)
			switch n.Level {
			case LevelCritical:
				h.Set("Priority", "high")
				h.Set("Tags", "rotating_light")
			case LevelWarning:
				h.Set("Priority", "default")
				h.Set("Tags", "warning")
			case LevelInfo:
				h.Set("Priority", "low")
				h.Set("Tags", "information_source")
			}
		})
	default:
		return fmt.Errorf("unknown channel type: %s", ch.Type)
	}
}

func (d *Dispatcher) post(ctx context.Context, ch config.NotifyChannel, url, contentType string, body []byte, extra ...func(http.Header)) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))
	if ch.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ch.Token)
	}
	for _, fn := range extra {
		fn(req.Header)
	}
	for k, v := range ch.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s failed with status: %d", ch.Type, resp.StatusCode)
	}
	return nil
}

func mustJSON(v any) []byte {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return body
}
