// Package topology enumerates the areas and entities of a smart home. The
// anchor bootstrapper uses it to decide which (domain, area) pairs exist.
package topology

import (
	"context"
	"sort"
	"strings"
)

// Area is a physical room or zone.
type Area struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Entity is a controllable device, identified as "<domain>.<object_id>".
type Entity struct {
	ID       string `yaml:"entity_id" json:"entity_id"`
	Name     string `yaml:"name" json:"name"`
	AreaID   string `yaml:"area_id" json:"area_id"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
}

// Domain returns the id prefix before the first dot.
func (e Entity) Domain() string {
	domain, _, ok := strings.Cut(e.ID, ".")
	if !ok {
		return ""
	}
	return domain
}

// Snapshot is a point-in-time view of the home.
type Snapshot struct {
	Areas    []Area   `yaml:"areas" json:"areas"`
	Entities []Entity `yaml:"entities" json:"entities"`
}

// Provider loads the current topology.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Placement groups the enabled entities of one domain within one area.
type Placement struct {
	Domain   string
	Area     Area
	Entities []Entity
}

// Placements lists every (domain, area) pair holding at least one enabled
// entity, sorted by domain then area name. Entities without a known area
// are ignored.
func (s *Snapshot) Placements() []Placement {
	areas := make(map[string]Area, len(s.Areas))
	for _, a := range s.Areas {
		areas[a.ID] = a
	}

	type key struct{ domain, area string }
	grouped := make(map[key]*Placement)
	for _, e := range s.Entities {
		if e.Disabled {
			continue
		}
		domain := e.Domain()
		area, ok := areas[e.AreaID]
		if domain == "" || !ok {
			continue
		}
		k := key{domain, area.ID}
		p, ok := grouped[k]
		if !ok {
			p = &Placement{Domain: domain, Area: area}
			grouped[k] = p
		}
		p.Entities = append(p.Entities, e)
	}

	out := make([]Placement, 0, len(grouped))
	for _, p := range grouped {
		sort.Slice(p.Entities, func(i, j int) bool { return p.Entities[i].ID < p.Entities[j].ID })
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Area.Name < out[j].Area.Name
	})
	return out
}

// Static serves a fixed snapshot.
type Static struct {
	snapshot Snapshot
}

// NewStatic creates a provider over the given areas and entities.
func NewStatic(areas []Area, entities []Entity) *Static {
	return &Static{snapshot: Snapshot{Areas: areas, Entities: entities}}
}

func (s *Static) Snapshot(context.Context) (*Snapshot, error) {
	cp := Snapshot{
		Areas:    append([]Area(nil), s.snapshot.Areas...),
		Entities: append([]Entity(nil), s.snapshot.Entities...),
	}
	return &cp, nil
}
