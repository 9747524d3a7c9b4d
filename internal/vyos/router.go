package vyos

import (
	"context"
	"net/url"

	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/router"
)

// Platform is the platform tag for VyOS 1.3 configuration trees.
const Platform = "vyos-1.3"

// Router is a VyOS 1.3 device reached through Client.
type Router struct {
	name   string
	host   string
	client *Client
	logger *logging.Logger
}

var _ router.Router = (*Router)(nil)

// NewRouter creates a router named name reached at baseURL.
func NewRouter(name, baseURL string, logger *logging.Logger, opts ...ClientOption) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Router{
		name:   name,
		host:   host,
		client: NewClient(baseURL, opts...),
		logger: logger.WithComponent("vyos").WithFields(map[string]any{"router": name}),
	}
}

func (r *Router) Name() string     { return r.name }
func (r *Router) Host() string     { return r.host }
func (r *Router) Platform() string { return Platform }

// GetConfig retrieves the full running configuration.
func (r *Router) GetConfig(ctx context.Context) (*configtree.ConfigTree, error) {
	node, err := r.client.Retrieve(ctx, nil)
	if err != nil {
		return nil, &router.CommunicationError{Router: r.name, Op: "retrieve", Err: err}
	}
	r.logger.Debug("retrieved configuration")
	return configtree.New(configtree.Path{}, node).WithPlatform(Platform), nil
}

// Configure pushes ops to the device. An empty batch is a no-op.
func (r *Router) Configure(ctx context.Context, ops []configtree.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	if err := r.client.Configure(ctx, ops); err != nil {
		return &router.CommunicationError{Router: r.name, Op: "configure", Err: err}
	}
	r.logger.Info("configuration pushed", "operations", len(ops))
	return nil
}

// PutConfig makes the device subtree at tree's context match tree. The live
// configuration is fetched and diffed so only the differences are sent.
func (r *Router) PutConfig(ctx context.Context, tree *configtree.ConfigTree) error {
	if err := router.CheckPlatform(r, tree); err != nil {
		return err
	}

	live, err := r.GetConfig(ctx)
	if err != nil {
		return err
	}
	ops, err := router.Reconcile(live, tree)
	if err != nil {
		return &router.ConfigError{Router: r.name, Message: err.Error()}
	}
	return r.Configure(ctx, ops)
}
