// Package builder turns firewall domain objects into configuration tree
// fragments for VyOS 1.3.
package builder

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
)

// AddressKind classifies an address object.
type AddressKind string

const (
	AddressHost    AddressKind = "host"
	AddressNetwork AddressKind = "network"
	AddressRange   AddressKind = "range"
	AddressGroup   AddressKind = "group"
)

// Address is a named set of IP endpoints.
type Address struct {
	Name      string
	Kind      AddressKind
	Addresses []string // host IPs or network prefixes
	Start     string   // range start
	End       string   // range end
	Members   []string // group members, by name
}

// ServiceKind classifies a service object.
type ServiceKind string

const (
	ServicePort  ServiceKind = "port"
	ServiceRange ServiceKind = "range"
	ServiceGroup ServiceKind = "group"
)

// Service is a named set of transport ports.
type Service struct {
	Name     string
	Kind     ServiceKind
	Protocol string // tcp, udp or tcp_udp
	Ports    []int
	Start    int
	End      int
	Members  []string
}

// Catalog resolves address and service objects by name.
type Catalog struct {
	addresses map[string]Address
	services  map[string]Service
}

// NewCatalog indexes and validates objects. Group members must exist and
// groups may not contain themselves.
func NewCatalog(addresses []Address, services []Service) (*Catalog, error) {
	c := &Catalog{
		addresses: make(map[string]Address, len(addresses)),
		services:  make(map[string]Service, len(services)),
	}
	var errs ValidationErrors

	for _, a := range addresses {
		if _, dup := c.addresses[a.Name]; dup {
			errs = append(errs, ValidationError{Object: "address " + a.Name, Message: "duplicate name"})
			continue
		}
		c.addresses[a.Name] = a
	}
	for _, s := range services {
		if _, dup := c.services[s.Name]; dup {
			errs = append(errs, ValidationError{Object: "service " + s.Name, Message: "duplicate name"})
			continue
		}
		c.services[s.Name] = s
	}

	for _, name := range sortedKeys(c.addresses) {
		if _, err := c.addressEntries(name, nil); err != nil {
			errs = append(errs, ValidationError{Object: "address " + name, Message: err.Error()})
		}
	}
	for _, name := range sortedKeys(c.services) {
		if _, _, err := c.serviceEntries(name, nil); err != nil {
			errs = append(errs, ValidationError{Object: "service " + name, Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}

// Address returns the named address object.
func (c *Catalog) Address(name string) (Address, bool) {
	a, ok := c.addresses[name]
	return a, ok
}

// Service returns the named service object.
func (c *Catalog) Service(name string) (Service, bool) {
	s, ok := c.services[name]
	return s, ok
}

// addressEntries flattens an address object into VyOS address values:
// single IPs, "a-b" ranges or network prefixes.
func (c *Catalog) addressEntries(name string, visiting []string) ([]addressEntry, error) {
	for _, v := range visiting {
		if v == name {
			return nil, fmt.Errorf("group cycle through %s", strings.Join(append(visiting, name), " -> "))
		}
	}
	a, ok := c.addresses[name]
	if !ok {
		return nil, fmt.Errorf("unknown address object %q", name)
	}

	switch a.Kind {
	case AddressHost:
		if len(a.Addresses) == 0 {
			return nil, fmt.Errorf("host object has no addresses")
		}
		out := make([]addressEntry, 0, len(a.Addresses))
		for _, s := range a.Addresses {
			ip, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("invalid host address %q", s)
			}
			out = append(out, addressEntry{value: ip.String()})
		}
		return out, nil

	case AddressNetwork:
		if len(a.Addresses) == 0 {
			return nil, fmt.Errorf("network object has no prefixes")
		}
		out := make([]addressEntry, 0, len(a.Addresses))
		for _, s := range a.Addresses {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("invalid network %q", s)
			}
			out = append(out, addressEntry{value: p.Masked().String(), network: true})
		}
		return out, nil

	case AddressRange:
		start, err := netip.ParseAddr(a.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q", a.Start)
		}
		end, err := netip.ParseAddr(a.End)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q", a.End)
		}
		if start.BitLen() != end.BitLen() {
			return nil, fmt.Errorf("range mixes address families")
		}
		if end.Less(start) {
			return nil, fmt.Errorf("range start %s is after end %s", start, end)
		}
		return []addressEntry{{value: start.String() + "-" + end.String()}}, nil

	case AddressGroup:
		if len(a.Members) == 0 {
			return nil, fmt.Errorf("group has no members")
		}
		var out []addressEntry
		for _, m := range a.Members {
			entries, err := c.addressEntries(m, append(visiting, name))
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown address kind %q", a.Kind)
}

type addressEntry struct {
	value   string
	network bool
}

// serviceEntries flattens a service object into a protocol and VyOS port
// values ("22" or "1000-2000").
func (c *Catalog) serviceEntries(name string, visiting []string) (string, []string, error) {
	for _, v := range visiting {
		if v == name {
			return "", nil, fmt.Errorf("group cycle through %s", strings.Join(append(visiting, name), " -> "))
		}
	}
	s, ok := c.services[name]
	if !ok {
		return "", nil, fmt.Errorf("unknown service object %q", name)
	}

	switch s.Kind {
	case ServicePort:
		if err := checkProtocol(s.Protocol); err != nil {
			return "", nil, err
		}
		if len(s.Ports) == 0 {
			return "", nil, fmt.Errorf("port object has no ports")
		}
		out := make([]string, 0, len(s.Ports))
		for _, p := range s.Ports {
			if err := checkPort(p); err != nil {
				return "", nil, err
			}
			out = append(out, strconv.Itoa(p))
		}
		return s.Protocol, out, nil

	case ServiceRange:
		if err := checkProtocol(s.Protocol); err != nil {
			return "", nil, err
		}
		value, err := portRange(s.Start, s.End)
		if err != nil {
			return "", nil, err
		}
		return s.Protocol, []string{value}, nil

	case ServiceGroup:
		if len(s.Members) == 0 {
			return "", nil, fmt.Errorf("group has no members")
		}
		proto := ""
		var out []string
		for _, m := range s.Members {
			p, ports, err := c.serviceEntries(m, append(visiting, name))
			if err != nil {
				return "", nil, err
			}
			if proto != "" && p != proto {
				return "", nil, fmt.Errorf("group mixes protocols %s and %s", proto, p)
			}
			proto = p
			out = append(out, ports...)
		}
		return proto, out, nil
	}
	return "", nil, fmt.Errorf("unknown service kind %q", s.Kind)
}

// portRange renders an inclusive port range. start > end is rejected;
// start == end is a single port.
func portRange(start, end int) (string, error) {
	if err := checkPort(start); err != nil {
		return "", err
	}
	if err := checkPort(end); err != nil {
		return "", err
	}
	if start > end {
		return "", fmt.Errorf("port range start %d is after end %d", start, end)
	}
	if start == end {
		return strconv.Itoa(start), nil
	}
	return fmt.Sprintf("%d-%d", start, end), nil
}

func checkPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("port %d out of range", p)
	}
	return nil
}

func checkProtocol(p string) error {
	switch p {
	case "tcp", "udp", "tcp_udp":
		return nil
	}
	return fmt.Errorf("protocol %q cannot carry ports", p)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
