// Package deploy applies planned configurations to routers and rolls every
// changed router back when any step fails.
package deploy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"grimm.is/fwplan/internal/configtree"
)

// State is the lifecycle state of a Deployment.
type State string

const (
	StatePreparation State = "preparation"
	StateReady       State = "ready"
	StateRunning     State = "running"
	StateFailed      State = "failed"
	StateSucceed     State = "succeed"
)

var transitions = map[State][]State{
	StatePreparation: {StateReady, StateFailed},
	StateReady:       {StateRunning, StateFailed},
	StateRunning:     {StateFailed, StateSucceed},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateSucceed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePreparation, StateReady, StateRunning, StateFailed, StateSucceed:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a state change is not allowed.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid deployment transition %s -> %s", e.From, e.To)
}

// RouterConfig pairs a router with its planned configuration.
type RouterConfig struct {
	Router string                 `json:"router"`
	Config *configtree.ConfigTree `json:"config"`
}

// RouterChange records what a deployment did to one planned config.
type RouterChange struct {
	Router        string                 `json:"router"`
	Context       configtree.Path        `json:"context"`
	Operations    []configtree.Operation `json:"operations"`
	RolledBack    bool                   `json:"rolled_back,omitempty"`
	RollbackError string                 `json:"rollback_error,omitempty"`
}

// Deployment is one attempt to bring a set of routers to their planned
// configurations. It is never reused across attempts.
type Deployment struct {
	ID         string         `json:"id"`
	State      State          `json:"state"`
	Configs    []RouterConfig `json:"configs"`
	Errors     string         `json:"errors,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Changes    []RouterChange `json:"changes,omitempty"`
}

// New creates a deployment in preparation.
func New(now time.Time) *Deployment {
	return &Deployment{
		ID:        uuid.NewString(),
		State:     StatePreparation,
		CreatedAt: now,
	}
}

// AddConfig attaches a planned configuration. Only allowed in preparation.
// A router may carry several configs as long as their contexts do not
// overlap.
func (d *Deployment) AddConfig(routerName string, tree *configtree.ConfigTree) error {
	if d.State != StatePreparation {
		return fmt.Errorf("deployment %s: configs are fixed once %s", d.ID, d.State)
	}
	ctx := tree.Context()
	for _, rc := range d.Configs {
		if rc.Router != routerName {
			continue
		}
		other := rc.Config.Context()
		if ctx.HasPrefix(other) || other.HasPrefix(ctx) {
			return fmt.Errorf("deployment %s: router %s already has a planned config overlapping %s", d.ID, routerName, ctx)
		}
	}
	d.Configs = append(d.Configs, RouterConfig{Router: routerName, Config: tree})
	return nil
}

// Routers returns the distinct router names in first-seen config order.
func (d *Deployment) Routers() []string {
	seen := make(map[string]bool, len(d.Configs))
	names := make([]string, 0, len(d.Configs))
	for _, rc := range d.Configs {
		if !seen[rc.Router] {
			seen[rc.Router] = true
			names = append(names, rc.Router)
		}
	}
	return names
}

// Transition moves d to next, stamping start and finish times.
func (d *Deployment) Transition(next State, now time.Time) error {
	if !d.State.CanTransition(next) {
		return &InvalidTransitionError{From: d.State, To: next}
	}
	d.State = next
	switch {
	case next == StateRunning:
		d.StartedAt = now
	case next.Terminal():
		d.FinishedAt = now
	}
	return nil
}

// Fail moves d to failed and records err.
func (d *Deployment) Fail(err error, now time.Time) error {
	if terr := d.Transition(StateFailed, now); terr != nil {
		return terr
	}
	if err != nil {
		d.Errors = err.Error()
	}
	return nil
}

// Duration is the running time of a finished deployment.
func (d *Deployment) Duration() time.Duration {
	if d.StartedAt.IsZero() || d.FinishedAt.IsZero() {
		return 0
	}
	return d.FinishedAt.Sub(d.StartedAt)
}
