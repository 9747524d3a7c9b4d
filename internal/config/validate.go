package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/crypto/bcrypt"

	"grimm.is/fwplan/internal/builder"
	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate validates the entire configuration. Firewall objects are built
// once so that every error a deployment would hit is reported up front.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, c.validateNames()...)
	errs = append(errs, c.validateRouters()...)
	errs = append(errs, c.validatePolicy()...)
	errs = append(errs, c.validateObjects()...)
	errs = append(errs, c.validateFragments()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateNotify()...)

	return errs
}

// validateNames checks every object name. Names become VyOS config nodes
// and API path segments.
func (c *Config) validateNames() ValidationErrors {
	var errs ValidationErrors
	check := func(kind, name string) {
		if name == "" {
			return
		}
		if err := validation.ValidateIdentifier(name); err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%s]", kind, validation.SanitizeString(name)), Message: err.Error()})
		}
	}
	for _, r := range c.Routers {
		check("router", r.Name)
	}
	for _, a := range c.Addresses {
		check("address", a.Name)
	}
	for _, s := range c.Services {
		check("service", s.Name)
	}
	for _, f := range c.Firewalls {
		check("firewall", f.Name)
	}
	for _, f := range c.Fragments {
		check("fragment", f.Name)
	}
	for _, n := range c.Notify {
		check("notify", n.Name)
	}
	if e := c.Events; e != nil && e.Subject != "" {
		if err := validation.ValidateSubject(e.Subject); err != nil {
			errs = append(errs, ValidationError{Field: "events.subject", Message: err.Error()})
		}
	}
	return errs
}

func (c *Config) validateRouters() ValidationErrors {
	var errs ValidationErrors
	if len(c.Routers) == 0 {
		errs = append(errs, ValidationError{Field: "router", Message: "at least one router is required"})
	}

	seen := make(map[string]bool)
	for i := range c.Routers {
		r := &c.Routers[i]
		field := fmt.Sprintf("router[%s]", r.Name)
		if r.Name == "" {
			field = fmt.Sprintf("router[%d]", i)
			errs = append(errs, ValidationError{Field: field, Message: "name is required"})
		}
		if seen[r.Name] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate router name"})
		}
		seen[r.Name] = true

		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field + ".url", Message: fmt.Sprintf("invalid URL %q", r.URL)})
		}
		if r.APIKey == "" && r.APIKeyEnv == "" {
			errs = append(errs, ValidationError{Field: field, Message: "api_key or api_key_env is required"})
		}
		if r.APIKey != "" && r.APIKeyEnv != "" {
			errs = append(errs, ValidationError{Field: field, Message: "api_key and api_key_env are mutually exclusive"})
		}
		errs = append(errs, checkDuration(field+".timeout", r.Timeout)...)

		deployed := make(map[string]bool)
		for _, name := range c.RouterFirewalls(r) {
			if _, ok := c.Firewall(name); !ok {
				errs = append(errs, ValidationError{Field: field + ".firewalls", Message: fmt.Sprintf("unknown firewall %q", name)})
			}
			deployed[name] = true
		}

		ifaces := make(map[string]bool)
		for _, b := range r.Interfaces {
			ifield := fmt.Sprintf("%s.interface[%s]", field, b.Name)
			if ifaces[b.Name] {
				errs = append(errs, ValidationError{Field: ifield, Message: "duplicate interface"})
			}
			ifaces[b.Name] = true
			if _, err := builder.BuildInterface(b.Builder()); err != nil {
				errs = append(errs, ValidationError{Field: ifield, Message: err.Error()})
			}
			for _, name := range b.Builder().RuleSets() {
				if !deployed[name] {
					errs = append(errs, ValidationError{Field: ifield, Message: fmt.Sprintf("firewall %q is not deployed to this router", name)})
				}
			}
		}
	}
	return errs
}

func (c *Config) validatePolicy() ValidationErrors {
	var errs ValidationErrors
	if p := c.Deployment; p != nil {
		errs = append(errs, checkDuration("deployment.grace_period", p.GracePeriod)...)
		errs = append(errs, checkDuration("deployment.rollback_timeout", p.RollbackTimeout)...)
		errs = append(errs, checkDuration("deployment.timeout", p.Timeout)...)
		if p.QueueSize < 0 {
			errs = append(errs, ValidationError{Field: "deployment.queue_size", Message: "must not be negative"})
		}
		if p.Ping != nil {
			errs = append(errs, checkDuration("deployment.ping.timeout", p.Ping.Timeout)...)
			if p.Ping.Count < 0 {
				errs = append(errs, ValidationError{Field: "deployment.ping.count", Message: "must not be negative"})
			}
		}
	}
	if c.Logging != nil {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
		}
	}
	if c.Drift != nil {
		errs = append(errs, checkDuration("drift.interval", c.Drift.Interval)...)
		if c.Drift.Enabled && c.Drift.Interval != "" && c.Drift.IntervalDuration() == 0 {
			errs = append(errs, ValidationError{Field: "drift.interval", Message: "must be positive"})
		}
	}
	if c.State != nil {
		errs = append(errs, checkDuration("state.retain", c.State.Retain)...)
	}
	return errs
}

func (c *Config) validateObjects() ValidationErrors {
	var errs ValidationErrors

	catalog, err := c.Catalog()
	if err != nil {
		return append(errs, fromBuilder(err)...)
	}

	seen := make(map[string]bool)
	for i := range c.Firewalls {
		fw := &c.Firewalls[i]
		if seen[fw.Name] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("firewall[%s]", fw.Name), Message: "duplicate firewall name"})
		}
		seen[fw.Name] = true

		def, err := fw.Builder()
		if err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("firewall[%s]", fw.Name), Message: err.Error()})
			continue
		}
		if _, err := catalog.BuildFirewall(def); err != nil {
			errs = append(errs, fromBuilder(err)...)
		}
	}
	return errs
}

func (c *Config) validateFragments() ValidationErrors {
	var errs ValidationErrors
	for i := range c.Fragments {
		f := &c.Fragments[i]
		field := fmt.Sprintf("fragment[%s]", f.Name)
		for _, pattern := range f.Routers {
			if !doublestar.ValidatePattern(pattern) {
				errs = append(errs, ValidationError{Field: field + ".routers", Message: fmt.Sprintf("invalid pattern %q", pattern)})
				continue
			}
			if !c.matchesRouter(pattern) {
				errs = append(errs, ValidationError{Field: field + ".routers", Message: fmt.Sprintf("unknown router %q", pattern)})
			}
		}
		if len(f.Raw) > 0 && !f.Value.IsNull() {
			errs = append(errs, ValidationError{Field: field, Message: "config given twice"})
		}
		if _, err := f.Tree(); err != nil {
			errs = append(errs, ValidationError{Field: field + ".config", Message: err.Error()})
		}
	}
	return errs
}

func (c *Config) matchesRouter(pattern string) bool {
	for _, r := range c.Routers {
		if ok, _ := doublestar.Match(pattern, r.Name); ok {
			return true
		}
	}
	return false
}

func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors
	if s := c.Server; s != nil {
		if s.TokenHash != "" {
			if _, err := bcrypt.Cost([]byte(s.TokenHash)); err != nil {
				errs = append(errs, ValidationError{Field: "server.token_hash", Message: "not a bcrypt hash"})
			}
		}
		if s.MaxConns < 0 {
			errs = append(errs, ValidationError{Field: "server.max_conns", Message: "must not be negative"})
		}
		if s.DeployRate < 0 || s.AuthRate < 0 {
			errs = append(errs, ValidationError{Field: "server", Message: "rates must not be negative"})
		}
	}
	if e := c.Events; e != nil && e.NATSURL == "" {
		errs = append(errs, ValidationError{Field: "events.nats_url", Message: "is required"})
	}
	return errs
}

var (
	notifyTypes  = []string{"webhook", "slack", "discord", "ntfy"}
	notifyLevels = []string{"info", "warning", "critical"}
)

func (c *Config) validateNotify() ValidationErrors {
	var errs ValidationErrors
	for _, n := range c.Notify {
		field := fmt.Sprintf("notify[%s]", n.Name)
		if !slices.Contains(notifyTypes, n.Type) {
			errs = append(errs, ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown type %q (want %s)", n.Type, strings.Join(notifyTypes, ", "))})
		}
		u, err := url.Parse(n.URL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field + ".url", Message: fmt.Sprintf("invalid URL %q", n.URL)})
		}
		if n.Type == "ntfy" && n.Topic == "" {
			errs = append(errs, ValidationError{Field: field + ".topic", Message: "is required for ntfy"})
		}
		if n.Level != "" && !slices.Contains(notifyLevels, n.Level) {
			errs = append(errs, ValidationError{Field: field + ".level", Message: fmt.Sprintf("unknown level %q", n.Level)})
		}
	}
	return errs
}

func checkDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("invalid duration %q", value)}}
	}
	if d < 0 {
		return ValidationErrors{{Field: field, Message: "must not be negative"}}
	}
	return nil
}

func fromBuilder(err error) ValidationErrors {
	var berrs builder.ValidationErrors
	if !errors.As(err, &berrs) {
		return ValidationErrors{{Field: "objects", Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(berrs))
	for _, e := range berrs {
		out = append(out, ValidationError{Field: e.Object, Message: e.Message})
	}
	return out
}
