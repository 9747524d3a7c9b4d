package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"grimm.is/fwplan/internal/logging"
)

// Publisher is the part of a NATS connection the forwarder uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes hub events on NATS as JSON, one subject per
// event type: <prefix>.<type>.
type NATSForwarder struct {
	hub    *Hub
	pub    Publisher
	prefix string
	logger *logging.Logger
	conn   *nats.Conn
}

// DialNATS connects to url and returns a forwarder for hub. The connection
// keeps retrying in the background if the server is down at start.
func DialNATS(hub *Hub, url, prefix string, logger *logging.Logger) (*NATSForwarder, error) {
	conn, err := nats.Connect(url,
		nats.Name("fwplan"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	f := NewForwarder(hub, conn, prefix, logger)
	f.conn = conn
	return f, nil
}

// NewForwarder creates a forwarder over an existing publisher.
func NewForwarder(hub *Hub, pub Publisher, prefix string, logger *logging.Logger) *NATSForwarder {
	if logger == nil {
		logger = logging.Default()
	}
	return &NATSForwarder{
		hub:    hub,
		pub:    pub,
		prefix: prefix,
		logger: logger.WithComponent("nats"),
	}
}

// Run forwards events until ctx is done.
func (f *NATSForwarder) Run(ctx context.Context) {
	ch := f.hub.Subscribe(256)
	defer f.hub.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := f.forward(e); err != nil {
				f.logger.Warn("failed to forward event", "type", e.Type, "error", err)
			}
		}
	}
}

func (f *NATSForwarder) forward(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return f.pub.Publish(f.subject(e.Type), data)
}

func (f *NATSForwarder) subject(t EventType) string {
	if f.prefix == "" {
		return string(t)
	}
	return f.prefix + "." + string(t)
}

// Close drains the NATS connection if the forwarder owns one.
func (f *NATSForwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Drain()
}
