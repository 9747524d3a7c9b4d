// Package plan composes firewall objects and raw fragments into the planned
// configuration trees deployed to each router.
package plan

import (
	"errors"
	"fmt"
	"time"

	"grimm.is/fwplan/internal/builder"
	"grimm.is/fwplan/internal/config"
	"grimm.is/fwplan/internal/configtree"
	"grimm.is/fwplan/internal/deploy"
	"grimm.is/fwplan/internal/logging"
)

// Fragment is a piece of planned configuration.
type Fragment struct {
	Name     string
	Tree     *configtree.ConfigTree
	Absolute bool
}

// Compose merges fragments in order. Fragments whose contexts nest end up in
// one tree at the outermost context; disjoint contexts stay separate. The
// result keeps the order in which each scope first appeared.
func Compose(fragments []Fragment) ([]*configtree.ConfigTree, error) {
	var scopes []*configtree.ConfigTree

	for _, f := range fragments {
		ctx := f.Tree.Context()

		merged := false
		for i, s := range scopes {
			if ctx.HasPrefix(s.Context()) {
				next, err := s.Merge(f.Tree, f.Absolute)
				if err != nil {
					return nil, fmt.Errorf("fragment %s: %w", f.Name, err)
				}
				scopes[i] = next
				merged = true
				break
			}
		}
		if merged {
			continue
		}

		// f is an ancestor of zero or more scopes: absorb them into a new scope
		// at f's context, then apply f on top.
		scope := configtree.Empty(ctx...)
		pos := -1
		kept := scopes[:0:0]
		for i, s := range scopes {
			if !s.Context().HasPrefix(ctx) {
				kept = append(kept, s)
				continue
			}
			if pos < 0 {
				pos = len(kept)
			}
			next, err := scope.Merge(s, true)
			if err != nil {
				return nil, fmt.Errorf("fragment %s: absorbing scope %d: %w", f.Name, i, err)
			}
			scope = next
		}

		next, err := scope.Merge(f.Tree, f.Absolute)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", f.Name, err)
		}
		if pos < 0 {
			scopes = append(kept, next)
			continue
		}
		scopes = append(kept[:pos], append([]*configtree.ConfigTree{next}, kept[pos:]...)...)
	}
	return scopes, nil
}

// Planner builds planned configurations from a loaded configuration file.
type Planner struct {
	cfg      *config.Config
	catalog  *builder.Catalog
	platform string
	logger   *logging.Logger
}

// New creates a planner. Trees are tagged with platform.
func New(cfg *config.Config, platform string, logger *logging.Logger) (*Planner, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Planner{
		cfg:      cfg,
		catalog:  catalog,
		platform: platform,
		logger:   logger.WithComponent("planner"),
	}, nil
}

// Fragments returns the fragments planned for a router in declaration
// order: its rule sets, then its interface bindings, then raw fragments.
func (p *Planner) Fragments(routerName string) ([]Fragment, error) {
	r, ok := p.cfg.Router(routerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", deploy.ErrUnknownRouter, routerName)
	}

	var out []Fragment
	for _, name := range p.cfg.RouterFirewalls(r) {
		fw, ok := p.cfg.Firewall(name)
		if !ok {
			return nil, fmt.Errorf("router %s: unknown firewall %q", routerName, name)
		}
		def, err := fw.Builder()
		if err != nil {
			return nil, err
		}
		tree, err := p.catalog.BuildFirewall(def)
		if err != nil {
			return nil, err
		}
		out = append(out, Fragment{Name: "firewall " + name, Tree: tree})
	}

	for i := range r.Interfaces {
		b := &r.Interfaces[i]
		tree, err := builder.BuildInterface(b.Builder())
		if err != nil {
			return nil, fmt.Errorf("router %s: %w", routerName, err)
		}
		out = append(out, Fragment{Name: "interface " + b.Name, Tree: tree})
	}

	for i := range p.cfg.Fragments {
		f := &p.cfg.Fragments[i]
		if !f.AppliesTo(routerName) {
			continue
		}
		tree, err := f.Tree()
		if err != nil {
			return nil, err
		}
		out = append(out, Fragment{Name: "fragment " + f.Name, Tree: tree, Absolute: f.Absolute})
	}
	return out, nil
}

// Plan returns the planned trees for a router, one per disjoint scope.
func (p *Planner) Plan(routerName string) ([]*configtree.ConfigTree, error) {
	fragments, err := p.Fragments(routerName)
	if err != nil {
		return nil, err
	}
	scopes, err := Compose(fragments)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", routerName, err)
	}
	for i, s := range scopes {
		scopes[i] = s.WithPlatform(p.platform)
	}
	p.logger.Debug("planned router", "router", routerName, "fragments", len(fragments), "scopes", len(scopes))
	return scopes, nil
}

// Prepare plans every named router into a new deployment. The deployment is
// ready when all routers planned cleanly and failed otherwise; a failed
// deployment is returned together with the planning error.
func (p *Planner) Prepare(routers []string, now time.Time) (*deploy.Deployment, error) {
	d := deploy.New(now)

	var errs []error
	for _, name := range routers {
		trees, err := p.Plan(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, tree := range trees {
			if err := d.AddConfig(name, tree); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(routers) == 0 {
		errs = append(errs, errors.New("no routers selected"))
	}

	if err := errors.Join(errs...); err != nil {
		if ferr := d.Fail(err, now); ferr != nil {
			return nil, ferr
		}
		p.logger.Warn("deployment planning failed", "deployment", d.ID, "error", err)
		return d, err
	}
	if err := d.Transition(deploy.StateReady, now); err != nil {
		return nil, err
	}
	p.logger.Info("deployment prepared", "deployment", d.ID, "routers", len(routers), "configs", len(d.Configs))
	return d, nil
}
