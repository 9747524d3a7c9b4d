package config

import (
	"fmt"
	"strconv"

	"grimm.is/fwplan/internal/builder"
)

// Catalog builds the address and service catalog described by the file.
func (c *Config) Catalog() (*builder.Catalog, error) {
	addrs := make([]builder.Address, 0, len(c.Addresses))
	for _, a := range c.Addresses {
		addrs = append(addrs, builder.Address{
			Name:      a.Name,
			Kind:      builder.AddressKind(a.Type),
			Addresses: a.Addresses,
			Start:     a.Start,
			End:       a.End,
			Members:   a.Members,
		})
	}
	services := make([]builder.Service, 0, len(c.Services))
	for _, s := range c.Services {
		services = append(services, builder.Service{
			Name:     s.Name,
			Kind:     builder.ServiceKind(s.Type),
			Protocol: s.Protocol,
			Ports:    s.Ports,
			Start:    s.Start,
			End:      s.End,
			Members:  s.Members,
		})
	}
	return builder.NewCatalog(addrs, services)
}

// Firewall returns the firewall block with the given name.
func (c *Config) Firewall(name string) (*Firewall, bool) {
	for i := range c.Firewalls {
		if c.Firewalls[i].Name == name {
			return &c.Firewalls[i], true
		}
	}
	return nil, false
}

// RouterFirewalls returns the rule sets deployed to r, in file order when r
// does not list them explicitly.
func (c *Config) RouterFirewalls(r *Router) []string {
	if len(r.Firewalls) > 0 {
		return r.Firewalls
	}
	names := make([]string, 0, len(c.Firewalls))
	for _, fw := range c.Firewalls {
		names = append(names, fw.Name)
	}
	return names
}

// Builder converts the block into a rule set definition.
func (f *Firewall) Builder() (builder.Firewall, error) {
	out := builder.Firewall{
		Name:             f.Name,
		DefaultAction:    f.DefaultAction,
		Description:      f.Description,
		EnableDefaultLog: f.DefaultLog,
		Rules:            make([]builder.Rule, 0, len(f.Rules)),
	}
	for _, r := range f.Rules {
		n, err := strconv.Atoi(r.Number)
		if err != nil {
			return builder.Firewall{}, fmt.Errorf("firewall %s: rule label %q is not a number", f.Name, r.Number)
		}
		out.Rules = append(out.Rules, builder.Rule{
			Number:      n,
			Action:      r.Action,
			Protocol:    r.Protocol,
			Source:      r.Source,
			Destination: r.Destination,
			Service:     r.Service,
			States:      r.States,
			Log:         r.Log,
			Disabled:    r.Disabled,
			Description: r.Description,
		})
	}
	return out, nil
}

// Builder converts the block into an interface binding.
func (b *InterfaceBinding) Builder() builder.InterfaceBinding {
	return builder.InterfaceBinding{Interface: b.Name, In: b.In, Out: b.Out, Local: b.Local}
}
