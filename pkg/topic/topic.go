// Package topic derives hierarchical UNS-style topic strings
// (enterprise/site/area/line/cell/category/stream) from the declared plant
// hierarchy. Resolution is deterministic and side-effect-free; on ties the
// first declaration-order match wins.
package topic

import (
	"strings"

	"github.com/user/plantsim"
)

// Hierarchy is the immutable site/area/line/cell tree a Resolver walks.
type Hierarchy struct {
	Enterprise string
	Sites      []Site
}

type Site struct {
	Name  string
	Areas []Area
}

type Area struct {
	Name  string
	Lines []Line
}

type Line struct {
	Name  string
	Cells []Cell
}

type Cell struct {
	Name      string
	Equipment []string
}

// EntityContext carries whichever identifiers the publishing stream knows.
// Deeper identifiers win: Equipment resolves through its cell, Line through
// its line node, Site through the site alone. External marks entities with no
// physical plant location (shipments).
type EntityContext struct {
	Site      string
	Line      string
	Equipment string
	External  string
}

// Resolver maps (stream slug, entity context) to a topic string.
type Resolver struct {
	enterprise string
	prefix     string
	flat       bool

	categories map[string]plantsim.Category
	inbound    map[string]string

	// declaration-order indexes, first match wins
	sitePath      map[string][]string
	linePath      map[string][]string
	equipmentPath map[string][]string
}

// Config declares the category membership lists and flat-mode settings.
type Config struct {
	Flat      bool
	Prefix    string
	Telemetry []string
	Events    []string
	State     []string
	Inbound   map[string]string
}

// NewResolver indexes the hierarchy once; Resolve is then a pure lookup.
func NewResolver(h Hierarchy, cfg Config) *Resolver {
	r := &Resolver{
		enterprise:    Slug(h.Enterprise),
		prefix:        cfg.Prefix,
		flat:          cfg.Flat,
		categories:    make(map[string]plantsim.Category),
		inbound:       make(map[string]string),
		sitePath:      make(map[string][]string),
		linePath:      make(map[string][]string),
		equipmentPath: make(map[string][]string),
	}
	if r.enterprise == "" {
		r.enterprise = "enterprise"
	}
	for _, s := range cfg.Telemetry {
		r.categories[s] = plantsim.CategoryTelemetry
	}
	for _, s := range cfg.Events {
		r.categories[s] = plantsim.CategoryEvents
	}
	for _, s := range cfg.State {
		r.categories[s] = plantsim.CategoryState
	}
	for slug, domain := range cfg.Inbound {
		r.inbound[slug] = Slug(domain)
	}

	for _, site := range h.Sites {
		sp := []string{r.enterprise, Slug(site.Name)}
		if _, ok := r.sitePath[site.Name]; !ok {
			r.sitePath[site.Name] = sp
		}
		for _, area := range site.Areas {
			ap := append(append([]string{}, sp...), Slug(area.Name))
			for _, line := range area.Lines {
				lp := append(append([]string{}, ap...), Slug(line.Name))
				if _, ok := r.linePath[line.Name]; !ok {
					r.linePath[line.Name] = lp
				}
				for _, cell := range line.Cells {
					cp := append(append([]string{}, lp...), Slug(cell.Name))
					for _, eqp := range cell.Equipment {
						if _, ok := r.equipmentPath[eqp]; !ok {
							r.equipmentPath[eqp] = cp
						}
					}
				}
			}
		}
	}
	return r
}

// Category reports the stream's classification; unlisted slugs default to
// telemetry.
func (r *Resolver) Category(slug string) plantsim.Category {
	if c, ok := r.categories[slug]; ok {
		return c
	}
	return plantsim.CategoryTelemetry
}

// Resolve builds the topic for one publish.
func (r *Resolver) Resolve(slug string, ec EntityContext) string {
	category := string(r.Category(slug))

	// Streams with no physical location publish under the inbound branch.
	if domain, ok := r.inbound[slug]; ok {
		segs := []string{r.enterprise, domain, "inbound"}
		if ec.External != "" {
			segs = append(segs, Slug(ec.External))
		}
		segs = append(segs, category, slug)
		return strings.Join(segs, "/")
	}

	if r.flat {
		return r.prefix + "/" + slug
	}

	if path := r.deepest(ec); path != nil {
		return strings.Join(append(append([]string{}, path...), category, slug), "/")
	}
	return strings.Join([]string{r.enterprise, category, slug}, "/")
}

func (r *Resolver) deepest(ec EntityContext) []string {
	if ec.Equipment != "" {
		if p, ok := r.equipmentPath[ec.Equipment]; ok {
			return p
		}
	}
	if ec.Line != "" {
		if p, ok := r.linePath[ec.Line]; ok {
			return p
		}
	}
	if ec.Site != "" {
		if p, ok := r.sitePath[ec.Site]; ok {
			return p
		}
	}
	return nil
}

// Slug normalizes a name for use as a topic segment: lowercase, spaces to
// hyphens, slashes stripped.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "/", "")
	return s
}
