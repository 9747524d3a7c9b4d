package builder

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/fwplan/internal/configtree"
)

// InterfaceBinding attaches rule sets to an ethernet interface. VLAN
// sub-interfaces are written as "eth0.10".
type InterfaceBinding struct {
	Interface string
	In        string
	Out       string
	Local     string
}

// InterfaceContext returns the firewall context of an ethernet interface.
func InterfaceContext(iface string) (configtree.Path, error) {
	name, vif, hasVif := strings.Cut(iface, ".")
	if !strings.HasPrefix(name, "eth") || len(name) == 3 {
		return nil, fmt.Errorf("interface %q is not an ethernet interface", iface)
	}
	if _, err := strconv.Atoi(name[3:]); err != nil {
		return nil, fmt.Errorf("interface %q is not an ethernet interface", iface)
	}
	if !hasVif {
		return configtree.Path{"interfaces", "ethernet", name, "firewall"}, nil
	}
	id, err := strconv.Atoi(vif)
	if err != nil || id < 1 || id > 4094 {
		return nil, fmt.Errorf("interface %q has invalid VLAN id", iface)
	}
	return configtree.Path{"interfaces", "ethernet", name, "vif", vif, "firewall"}, nil
}

// BuildInterface renders b as a fragment at the interface's firewall context.
func BuildInterface(b InterfaceBinding) (*configtree.ConfigTree, error) {
	ctx, err := InterfaceContext(b.Interface)
	if err != nil {
		return nil, err
	}
	if b.In == "" && b.Out == "" && b.Local == "" {
		return nil, ValidationErrors{{Object: "interface " + b.Interface, Message: "binds no rule set"}}
	}

	dirs := make(map[string]configtree.Node, 3)
	for dir, name := range map[string]string{"in": b.In, "out": b.Out, "local": b.Local} {
		if name == "" {
			continue
		}
		dirs[dir] = configtree.NewMapping(map[string]configtree.Node{"name": configtree.NewScalar(name)})
	}
	return configtree.New(ctx, configtree.NewMapping(dirs)), nil
}

// RuleSets returns the rule set names the binding references.
func (b InterfaceBinding) RuleSets() []string {
	var out []string
	for _, name := range []string{b.In, b.Out, b.Local} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
