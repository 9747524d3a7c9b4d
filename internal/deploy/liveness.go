package deploy

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// LivenessChecker verifies a router still answers after a push.
type LivenessChecker interface {
	Check(ctx context.Context, host string) error
}

// LivenessFunc adapts a function to LivenessChecker.
type LivenessFunc func(ctx context.Context, host string) error

// Check calls f.
func (f LivenessFunc) Check(ctx context.Context, host string) error {
	return f(ctx, host)
}

// AlwaysAlive is a checker that never fails. Used with simulated routers.
var AlwaysAlive = LivenessFunc(func(context.Context, string) error { return nil })

// PingChecker checks reachability with ICMP echo. A single check is made;
// it is not retried.
type PingChecker struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// DefaultPingChecker sends three unprivileged pings within five seconds.
func DefaultPingChecker() *PingChecker {
	return &PingChecker{Count: 3, Timeout: 5 * time.Second}
}

// Check succeeds when at least one reply arrives.
func (p *PingChecker) Check(ctx context.Context, host string) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = p.Count
	if pinger.Count <= 0 {
		pinger.Count = 1
	}
	pinger.Timeout = p.Timeout
	if pinger.Timeout <= 0 {
		pinger.Timeout = time.Second
	}
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", host, err)
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("ping %s: packet loss", host)
	}
	return nil
}
