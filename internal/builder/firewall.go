package builder

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/fwplan/internal/configtree"
)

// FirewallContext is where rule sets and groups live on the device.
var FirewallContext = configtree.Path{"firewall"}

// ValidationError describes one invalid object.
type ValidationError struct {
	Object  string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Object, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Rule is one numbered entry of a rule set. Source and Destination name
// address objects; empty means any. Service names a service object matched
// on the destination port.
type Rule struct {
	Number      int
	Action      string
	Protocol    string
	Source      string
	Destination string
	Service     string
	States      []string
	Log         bool
	Disabled    bool
	Description string
}

// Firewall is a named rule set.
type Firewall struct {
	Name             string
	DefaultAction    string
	Description      string
	EnableDefaultLog bool
	Rules            []Rule
}

var validActions = map[string]bool{"accept": true, "drop": true, "reject": true}

var validStates = map[string]bool{"established": true, "related": true, "new": true, "invalid": true}

// BuildFirewall renders fw as a fragment at [firewall]. Address and service
// objects referenced by more than a single inline value become groups named
// after the object and are emitted alongside the rule set.
func (c *Catalog) BuildFirewall(fw Firewall) (*configtree.ConfigTree, error) {
	var errs ValidationErrors
	fail := func(msg string, args ...any) {
		errs = append(errs, ValidationError{Object: "firewall " + fw.Name, Message: fmt.Sprintf(msg, args...)})
	}

	if fw.Name == "" {
		fail("name is required")
	}
	action := fw.DefaultAction
	if action == "" {
		action = "drop"
	}
	if !validActions[action] {
		fail("invalid default action %q", fw.DefaultAction)
	}

	g := &groups{}
	ruleSet := map[string]configtree.Node{"default-action": configtree.NewScalar(action)}
	if fw.Description != "" {
		ruleSet["description"] = configtree.NewScalar(fw.Description)
	}
	if fw.EnableDefaultLog {
		ruleSet["enable-default-log"] = configtree.EmptyMapping()
	}

	rules := make(map[string]configtree.Node, len(fw.Rules))
	for _, r := range fw.Rules {
		key := strconv.Itoa(r.Number)
		if _, dup := rules[key]; dup {
			fail("duplicate rule %d", r.Number)
			continue
		}
		node, err := c.buildRule(r, g)
		if err != nil {
			fail("rule %d: %v", r.Number, err)
			continue
		}
		rules[key] = node
	}
	if len(rules) > 0 {
		ruleSet["rule"] = configtree.NewMapping(rules)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	root := map[string]configtree.Node{
		"name": configtree.NewMapping(map[string]configtree.Node{fw.Name: configtree.NewMapping(ruleSet)}),
	}
	if group := g.node(); group != nil {
		root["group"] = group
	}
	return configtree.New(FirewallContext, configtree.NewMapping(root)), nil
}

func (c *Catalog) buildRule(r Rule, g *groups) (configtree.Node, error) {
	if r.Number < 1 || r.Number > 9999 {
		return nil, fmt.Errorf("number must be between 1 and 9999")
	}
	if !validActions[r.Action] {
		return nil, fmt.Errorf("invalid action %q", r.Action)
	}

	rule := map[string]configtree.Node{"action": configtree.NewScalar(r.Action)}
	if r.Description != "" {
		rule["description"] = configtree.NewScalar(r.Description)
	}
	if r.Disabled {
		rule["disable"] = configtree.EmptyMapping()
	}
	if r.Log {
		rule["log"] = configtree.NewScalar("enable")
	}

	protocol := r.Protocol
	dest := map[string]configtree.Node{}
	if r.Service != "" {
		svcProto, match, err := c.serviceMatch(r.Service, g)
		if err != nil {
			return nil, err
		}
		if protocol != "" && protocol != svcProto {
			return nil, fmt.Errorf("protocol %s conflicts with service %s (%s)", protocol, r.Service, svcProto)
		}
		protocol = svcProto
		for k, v := range match {
			dest[k] = v
		}
	}
	if protocol != "" {
		rule["protocol"] = configtree.NewScalar(protocol)
	}

	if r.Source != "" {
		src, err := c.addressMatch(r.Source, g)
		if err != nil {
			return nil, err
		}
		rule["source"] = configtree.NewMapping(src)
	}
	if r.Destination != "" {
		match, err := c.addressMatch(r.Destination, g)
		if err != nil {
			return nil, err
		}
		for k, v := range match {
			if k == "group" {
				if existing, ok := dest["group"].(*configtree.Mapping); ok {
					v = mergeGroupRefs(existing, v.(*configtree.Mapping))
				}
			}
			dest[k] = v
		}
	}
	if len(dest) > 0 {
		rule["destination"] = configtree.NewMapping(dest)
	}

	if len(r.States) > 0 {
		states := make(map[string]configtree.Node, len(r.States))
		for _, s := range r.States {
			if !validStates[s] {
				return nil, fmt.Errorf("invalid state %q", s)
			}
			states[s] = configtree.NewScalar("enable")
		}
		rule["state"] = configtree.NewMapping(states)
	}

	return configtree.NewMapping(rule), nil
}

// addressMatch returns the source or destination keys matching an address
// object: an inline address when it resolves to one value, a group otherwise.
func (c *Catalog) addressMatch(name string, g *groups) (map[string]configtree.Node, error) {
	entries, err := c.addressEntries(name, nil)
	if err != nil {
		return nil, err
	}
	a := c.addresses[name]
	if len(entries) == 1 && a.Kind != AddressGroup {
		return map[string]configtree.Node{"address": configtree.NewScalar(entries[0].value)}, nil
	}

	networks := 0
	for _, e := range entries {
		if e.network {
			networks++
		}
	}
	values := make([]string, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.value)
	}

	var kind string
	switch networks {
	case len(entries):
		kind = "network-group"
		g.add(kind, "network", name, values)
	case 0:
		kind = "address-group"
		g.add(kind, "address", name, values)
	default:
		return nil, fmt.Errorf("address object %s mixes networks with hosts or ranges", name)
	}
	return map[string]configtree.Node{
		"group": configtree.NewMapping(map[string]configtree.Node{kind: configtree.NewScalar(name)}),
	}, nil
}

// serviceMatch returns the protocol and destination keys matching a
// service object.
func (c *Catalog) serviceMatch(name string, g *groups) (string, map[string]configtree.Node, error) {
	proto, ports, err := c.serviceEntries(name, nil)
	if err != nil {
		return "", nil, err
	}
	if c.services[name].Kind != ServiceGroup {
		return proto, map[string]configtree.Node{"port": configtree.NewScalar(strings.Join(ports, ","))}, nil
	}
	g.add("port-group", "port", name, ports)
	return proto, map[string]configtree.Node{
		"group": configtree.NewMapping(map[string]configtree.Node{"port-group": configtree.NewScalar(name)}),
	}, nil
}

func mergeGroupRefs(a, b *configtree.Mapping) *configtree.Mapping {
	out := a
	for _, k := range b.Keys() {
		v, _ := b.Get(k)
		out = out.With(k, v)
	}
	return out
}

// groups collects the group definitions referenced by a rule set.
type groups struct {
	entries map[string]map[string]configtree.Node
}

func (g *groups) add(kind, field, name string, values []string) {
	if g.entries == nil {
		g.entries = make(map[string]map[string]configtree.Node)
	}
	if g.entries[kind] == nil {
		g.entries[kind] = make(map[string]configtree.Node)
	}
	seen := make(map[string]bool, len(values))
	unique := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	g.entries[kind][name] = configtree.NewMapping(map[string]configtree.Node{field: valueNode(unique)})
}

func (g *groups) node() configtree.Node {
	if len(g.entries) == 0 {
		return nil
	}
	out := make(map[string]configtree.Node, len(g.entries))
	for kind, defs := range g.entries {
		out[kind] = configtree.NewMapping(defs)
	}
	return configtree.NewMapping(out)
}

// valueNode renders a multi-valued leaf the way the device reports it: a
// plain value when there is one, a list otherwise.
func valueNode(values []string) configtree.Node {
	if len(values) == 1 {
		return configtree.NewScalar(values[0])
	}
	return configtree.NewSequence(values...)
}
