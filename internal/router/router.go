// Package router defines the device capability the deployment engine drives
// and the errors a device may report.
package router

import (
	"context"
	"errors"
	"fmt"

	"grimm.is/fwplan/internal/configtree"
)

// Router is a configurable network device.
type Router interface {
	// Name is the unique router identifier used for locking and reporting.
	Name() string

	// Host is the management address used for liveness checks.
	Host() string

	// Platform is the device platform tag, e.g. "vyos-1.3".
	Platform() string

	// GetConfig retrieves the full live configuration.
	GetConfig(ctx context.Context) (*configtree.ConfigTree, error)

	// Configure pushes operations and commits them.
	Configure(ctx context.Context, ops []configtree.Operation) error

	// PutConfig brings the subtree at tree's context to exactly tree's content.
	PutConfig(ctx context.Context, tree *configtree.ConfigTree) error
}

// CommunicationError is a transport-level failure talking to a device:
// network errors, unexpected status codes, malformed responses, or an
// explicit failure reported by the device API.
type CommunicationError struct {
	Router string
	Op     string
	Err    error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("router %s: %s: %v", e.Router, e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// ConfigError reports a configuration tree that the device cannot accept,
// such as one built for a different platform.
type ConfigError struct {
	Router  string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("router %s: incompatible configuration: %s", e.Router, e.Message)
}

// CheckPlatform returns a ConfigError when tree is tagged for a platform
// other than r's. Untagged trees are accepted.
func CheckPlatform(r Router, tree *configtree.ConfigTree) error {
	if tree.Platform() != "" && tree.Platform() != r.Platform() {
		return &ConfigError{
			Router:  r.Name(),
			Message: fmt.Sprintf("tree built for %q, device is %q", tree.Platform(), r.Platform()),
		}
	}
	return nil
}

// Reconcile computes the operations that turn live into desired at
// desired's context. A live tree without that context counts as empty.
func Reconcile(live, desired *configtree.ConfigTree) ([]configtree.Operation, error) {
	current, err := live.SubConfig(desired.Context())
	if err != nil {
		var notFound *configtree.PathNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		current = configtree.Empty(desired.Context()...)
	}
	diff, err := current.Diff(desired)
	if err != nil {
		return nil, err
	}
	return diff.Commands(), nil
}
