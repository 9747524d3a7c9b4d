package config

import (
	"encoding/json"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Config is the top-level structure of an fwplan configuration file.
type Config struct {
	// Schema version for backward compatibility. Empty means "1.0".
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Routers    []Router          `hcl:"router,block" json:"routers"`
	Deployment *DeploymentPolicy `hcl:"deployment,block" json:"deployment,omitempty"`
	State      *StateConfig      `hcl:"state,block" json:"state,omitempty"`
	Logging    *LoggingConfig    `hcl:"logging,block" json:"logging,omitempty"`
	Server     *ServerConfig     `hcl:"server,block" json:"server,omitempty"`
	Drift      *DriftConfig      `hcl:"drift,block" json:"drift,omitempty"`
	Events     *EventsConfig     `hcl:"events,block" json:"events,omitempty"`
	Tracing    *TracingConfig    `hcl:"tracing,block" json:"tracing,omitempty"`
	Notify     []NotifyChannel   `hcl:"notify,block" json:"notify,omitempty"`

	// Firewall objects
	Addresses []Address  `hcl:"address,block" json:"addresses,omitempty"`
	Services  []Service  `hcl:"service,block" json:"services,omitempty"`
	Firewalls []Firewall `hcl:"firewall,block" json:"firewalls,omitempty"`

	// Raw configuration merged after the firewall objects, in file order
	Fragments []Fragment `hcl:"fragment,block" json:"fragments,omitempty"`
}

// Router is a managed VyOS device.
type Router struct {
	Name      string `hcl:"name,label" json:"name"`
	URL       string `hcl:"url" json:"url"`
	APIKey    string `hcl:"api_key,optional" json:"api_key,omitempty"`
	APIKeyEnv string `hcl:"api_key_env,optional" json:"api_key_env,omitempty"` // read the key from this variable instead
	VerifyTLS *bool  `hcl:"verify_tls,optional" json:"verify_tls,omitempty"`  // nil = verify
	Timeout   string `hcl:"timeout,optional" json:"timeout,omitempty"`

	// Rule sets deployed to this router. Empty means every firewall block.
	Firewalls  []string           `hcl:"firewalls,optional" json:"firewalls,omitempty"`
	Interfaces []InterfaceBinding `hcl:"interface,block" json:"interfaces,omitempty"`
}

// InterfaceBinding attaches rule sets to an ethernet interface ("eth0" or
// "eth0.10" for a VLAN).
type InterfaceBinding struct {
	Name  string `hcl:"name,label" json:"name"`
	In    string `hcl:"in,optional" json:"in,omitempty"`
	Out   string `hcl:"out,optional" json:"out,omitempty"`
	Local string `hcl:"local,optional" json:"local,omitempty"`
}

// DeploymentPolicy controls how deployments are applied.
type DeploymentPolicy struct {
	GracePeriod     string      `hcl:"grace_period,optional" json:"grace_period,omitempty"`
	RollbackTimeout string      `hcl:"rollback_timeout,optional" json:"rollback_timeout,omitempty"`
	Timeout         string      `hcl:"timeout,optional" json:"timeout,omitempty"` // whole deployment
	QueueSize       int         `hcl:"queue_size,optional" json:"queue_size,omitempty"`
	Ping            *PingConfig `hcl:"ping,block" json:"ping,omitempty"`
}

// PingConfig tunes the post-push liveness check.
type PingConfig struct {
	Enabled    *bool  `hcl:"enabled,optional" json:"enabled,omitempty"` // nil = enabled
	Count      int    `hcl:"count,optional" json:"count,omitempty"`
	Timeout    string `hcl:"timeout,optional" json:"timeout,omitempty"`
	Privileged bool   `hcl:"privileged,optional" json:"privileged,omitempty"` // raw ICMP sockets
}

// StateConfig locates the deployment history database.
type StateConfig struct {
	Path   string `hcl:"path,optional" json:"path,omitempty"`
	Retain string `hcl:"retain,optional" json:"retain,omitempty"` // prune finished deployments older than this
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `hcl:"level,optional" json:"level,omitempty"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// ServerConfig configures the HTTP listener of the serve command.
type ServerConfig struct {
	Listen    string `hcl:"listen,optional" json:"listen,omitempty"`
	TokenHash string `hcl:"token_hash,optional" json:"token_hash,omitempty"` // bcrypt hash of the API bearer token
	MaxConns  int    `hcl:"max_conns,optional" json:"max_conns,omitempty"`   // 0 = unlimited

	// Requests per minute per client IP
	DeployRate int `hcl:"deploy_rate,optional" json:"deploy_rate,omitempty"`
	AuthRate   int `hcl:"auth_rate,optional" json:"auth_rate,omitempty"`
}

// EventsConfig forwards deployment and drift events to NATS.
type EventsConfig struct {
	NATSURL string `hcl:"nats_url" json:"nats_url"`
	Subject string `hcl:"subject,optional" json:"subject,omitempty"`
}

// TracingConfig enables OpenTelemetry spans around deployments.
type TracingConfig struct {
	Enabled     bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	ServiceName string `hcl:"service_name,optional" json:"service_name,omitempty"`
}

// NotifyChannel sends deployment and drift notices to a chat or push
// service. Type is one of webhook, slack, discord or ntfy.
type NotifyChannel struct {
	Name    string            `hcl:"name,label" json:"name"`
	Type    string            `hcl:"type" json:"type"`
	URL     string            `hcl:"url" json:"url"`                         // ntfy: server base URL
	Topic   string            `hcl:"topic,optional" json:"topic,omitempty"` // ntfy only
	Token   string            `hcl:"token,optional" json:"token,omitempty"` // sent as a bearer token
	Level   string            `hcl:"level,optional" json:"level,omitempty"` // minimum level; default warning
	Headers map[string]string `hcl:"headers,optional" json:"headers,omitempty"`
}

// DriftConfig configures periodic drift detection.
type DriftConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Interval string `hcl:"interval,optional" json:"interval,omitempty"`
}

// Address is a named address object.
// Type is one of host, network, range or group.
type Address struct {
	Name      string   `hcl:"name,label" json:"name"`
	Type      string   `hcl:"type" json:"type"`
	Addresses []string `hcl:"addresses,optional" json:"addresses,omitempty"`
	Start     string   `hcl:"start,optional" json:"start,omitempty"`
	End       string   `hcl:"end,optional" json:"end,omitempty"`
	Members   []string `hcl:"members,optional" json:"members,omitempty"`
}

// Service is a named service object.
// Type is one of port, range or group.
type Service struct {
	Name     string   `hcl:"name,label" json:"name"`
	Type     string   `hcl:"type" json:"type"`
	Protocol string   `hcl:"protocol,optional" json:"protocol,omitempty"`
	Ports    []int    `hcl:"ports,optional" json:"ports,omitempty"`
	Start    int      `hcl:"start,optional" json:"start,omitempty"`
	End      int      `hcl:"end,optional" json:"end,omitempty"`
	Members  []string `hcl:"members,optional" json:"members,omitempty"`
}

// Firewall is a named rule set.
type Firewall struct {
	Name          string `hcl:"name,label" json:"name"`
	DefaultAction string `hcl:"default_action,optional" json:"default_action,omitempty"` // default: drop
	Description   string `hcl:"description,optional" json:"description,omitempty"`
	DefaultLog    bool   `hcl:"default_log,optional" json:"default_log,omitempty"`
	Rules         []Rule `hcl:"rule,block" json:"rules,omitempty"`
}

// Rule is one numbered rule; the label is the rule number.
type Rule struct {
	Number      string   `hcl:"number,label" json:"number"`
	Action      string   `hcl:"action" json:"action"`
	Protocol    string   `hcl:"protocol,optional" json:"protocol,omitempty"`
	Source      string   `hcl:"source,optional" json:"source,omitempty"`           // address object
	Destination string   `hcl:"destination,optional" json:"destination,omitempty"` // address object
	Service     string   `hcl:"service,optional" json:"service,omitempty"`         // service object
	States      []string `hcl:"states,optional" json:"states,omitempty"`
	Log         bool     `hcl:"log,optional" json:"log,omitempty"`
	Disabled    bool     `hcl:"disabled,optional" json:"disabled,omitempty"`
	Description string   `hcl:"description,optional" json:"description,omitempty"`
}

// Fragment is raw device configuration anchored at Context.
//
// In HCL the body is an object expression:
//
//	fragment "ntp" {
//	  context = ["system", "ntp"]
//	  config  = { server = { "0.pool.ntp.org" = {} } }
//	}
type Fragment struct {
	Name     string   `hcl:"name,label" json:"name"`
	Routers  []string `hcl:"routers,optional" json:"routers,omitempty"` // glob patterns; empty = all routers
	Context  []string `hcl:"context,optional" json:"context,omitempty"`
	Absolute bool     `hcl:"absolute,optional" json:"absolute,omitempty"`

	Value cty.Value       `hcl:"config,optional" json:"-"`
	Raw   json.RawMessage `json:"config,omitempty"`
}

// Defaults used when the configuration leaves a setting out.
const (
	DefaultStatePath       = "/var/lib/fwplan/state.db"
	DefaultListen          = ":8088"
	DefaultLogLevel        = "info"
	DefaultGracePeriod     = 10 * time.Second
	DefaultRollbackTimeout = 2 * time.Minute
	DefaultTimeout         = 10 * time.Minute
	DefaultRouterTimeout   = 30 * time.Second
	DefaultQueueSize       = 16
	DefaultPingCount       = 3
	DefaultPingTimeout     = 5 * time.Second
	DefaultDriftInterval   = 15 * time.Minute
	DefaultRetain          = 30 * 24 * time.Hour
	DefaultDeployRate      = 10
	DefaultAuthRate        = 5
	DefaultEventSubject    = "fwplan"
	DefaultServiceName     = "fwplan"
	DefaultNotifyLevel     = "warning"
)

// ApplyDefaults fills in every optional block so callers never see nil.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.Deployment == nil {
		c.Deployment = &DeploymentPolicy{}
	}
	if c.Deployment.QueueSize == 0 {
		c.Deployment.QueueSize = DefaultQueueSize
	}
	if c.Deployment.Ping == nil {
		c.Deployment.Ping = &PingConfig{}
	}
	if c.Deployment.Ping.Count == 0 {
		c.Deployment.Ping.Count = DefaultPingCount
	}
	if c.State == nil {
		c.State = &StateConfig{}
	}
	if c.State.Path == "" {
		c.State.Path = DefaultStatePath
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.DeployRate == 0 {
		c.Server.DeployRate = DefaultDeployRate
	}
	if c.Server.AuthRate == 0 {
		c.Server.AuthRate = DefaultAuthRate
	}
	if c.Events != nil && c.Events.Subject == "" {
		c.Events.Subject = DefaultEventSubject
	}
	if c.Tracing == nil {
		c.Tracing = &TracingConfig{}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Drift == nil {
		c.Drift = &DriftConfig{}
	}
	for i := range c.Notify {
		if c.Notify[i].Level == "" {
			c.Notify[i].Level = DefaultNotifyLevel
		}
	}
}

// Router returns the router block with the given name.
func (c *Config) Router(name string) (*Router, bool) {
	for i := range c.Routers {
		if c.Routers[i].Name == name {
			return &c.Routers[i], true
		}
	}
	return nil, false
}

// RouterNames returns router names in file order.
func (c *Config) RouterNames() []string {
	names := make([]string, 0, len(c.Routers))
	for _, r := range c.Routers {
		names = append(names, r.Name)
	}
	return names
}

// Durations parsed from the deployment policy. Validate rejects malformed
// values, so these fall back to defaults only when a value is unset.

func (p *DeploymentPolicy) GracePeriodDuration() time.Duration {
	return durationOr(p.GracePeriod, DefaultGracePeriod)
}

func (p *DeploymentPolicy) RollbackTimeoutDuration() time.Duration {
	return durationOr(p.RollbackTimeout, DefaultRollbackTimeout)
}

func (p *DeploymentPolicy) TimeoutDuration() time.Duration {
	return durationOr(p.Timeout, DefaultTimeout)
}

func (p *PingConfig) TimeoutDuration() time.Duration {
	return durationOr(p.Timeout, DefaultPingTimeout)
}

// IsEnabled reports whether liveness pings run after each push.
func (p *PingConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (r *Router) TimeoutDuration() time.Duration {
	return durationOr(r.Timeout, DefaultRouterTimeout)
}

// TLSVerify reports whether the router's certificate is checked.
func (r *Router) TLSVerify() bool {
	return r.VerifyTLS == nil || *r.VerifyTLS
}

func (d *DriftConfig) IntervalDuration() time.Duration {
	return durationOr(d.Interval, DefaultDriftInterval)
}

func (s *StateConfig) RetainDuration() time.Duration {
	return durationOr(s.Retain, DefaultRetain)
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
