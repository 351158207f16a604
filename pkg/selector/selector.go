// Package selector validates which buffers of a Configuration the caller wants
// to poll and records them as an ordered Selection.
//
// Out-of-range indices are rejected: Select stops at the first invalid group
// or buffer index and returns an error wrapping errors.ErrSelection. The same
// policy applies to group and buffer bounds, and a rejected call produces no
// Selection, so whatever the caller held before stays valid.
package selector

import (
	"fmt"
	"sort"

	"github.com/HatiCode/phyxlog/pkg/errors"
	"github.com/HatiCode/phyxlog/pkg/experiment"
)

// GroupSpec asks for some buffers of one BufferGroup, by index.
type GroupSpec struct {
	Group   int   `yaml:"group"`
	Buffers []int `yaml:"buffers"`
}

// Group is one selected group: a subset of a BufferGroup's buffer names in
// the group's own order.
type Group struct {
	// Index is the BufferGroup index in the Configuration.
	Index   int
	Source  string
	Buffers []string
}

// Primary returns the group's first selected buffer, which anchors the time
// bound of the whole group.
func (g Group) Primary() string {
	if len(g.Buffers) == 0 {
		return ""
	}
	return g.Buffers[0]
}

// Selection is the ordered list of selected groups.
type Selection struct {
	Groups []Group
}

// All selects every buffer of every group, in configuration order.
func All(cfg *experiment.Configuration) Selection {
	if cfg == nil {
		return Selection{}
	}
	sel := Selection{Groups: make([]Group, 0, len(cfg.Groups))}
	for _, g := range cfg.Groups {
		sel.Groups = append(sel.Groups, Group{
			Index:   g.Index,
			Source:  g.Source,
			Buffers: append([]string(nil), g.Buffers...),
		})
	}
	return sel
}

// Select builds a Selection from specs. An empty specs selects everything.
// Buffer indices are emitted in the group's order with duplicates collapsed;
// a spec that selects no buffer contributes no group.
func Select(cfg *experiment.Configuration, specs []GroupSpec) (Selection, error) {
	if cfg == nil {
		return Selection{}, errors.ErrNoConfiguration
	}
	if len(specs) == 0 {
		return All(cfg), nil
	}

	sel := Selection{Groups: make([]Group, 0, len(specs))}
	for _, spec := range specs {
		bg, ok := cfg.Group(spec.Group)
		if !ok {
			return Selection{}, fmt.Errorf("group %d out of range, configuration has %d groups: %w",
				spec.Group, len(cfg.Groups), errors.ErrSelection)
		}

		indices := append([]int(nil), spec.Buffers...)
		sort.Ints(indices)

		g := Group{Index: bg.Index, Source: bg.Source}
		for i, idx := range indices {
			if idx < 0 || idx >= len(bg.Buffers) {
				return Selection{}, fmt.Errorf("buffer %d out of range, group %d has %d buffers: %w",
					idx, spec.Group, len(bg.Buffers), errors.ErrSelection)
			}
			if i > 0 && indices[i-1] == idx {
				continue
			}
			g.Buffers = append(g.Buffers, bg.Buffers[idx])
		}
		if len(g.Buffers) > 0 {
			sel.Groups = append(sel.Groups, g)
		}
	}

	return sel, nil
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	for _, g := range s.Groups {
		if len(g.Buffers) > 0 {
			return false
		}
	}
	return true
}

// Len returns the number of selected groups.
func (s Selection) Len() int {
	return len(s.Groups)
}

// Buffer returns the name of buffer b in selected group g, or "" when either
// index is out of range.
func (s Selection) Buffer(g, b int) string {
	if g < 0 || g >= len(s.Groups) {
		return ""
	}
	names := s.Groups[g].Buffers
	if b < 0 || b >= len(names) {
		return ""
	}
	return names[b]
}

// Names returns the selected buffer names as one slice per group.
func (s Selection) Names() [][]string {
	out := make([][]string, len(s.Groups))
	for i, g := range s.Groups {
		out[i] = append([]string(nil), g.Buffers...)
	}
	return out
}

// Clone returns a deep copy of s.
func (s Selection) Clone() Selection {
	out := Selection{Groups: make([]Group, len(s.Groups))}
	for i, g := range s.Groups {
		out.Groups[i] = Group{Index: g.Index, Source: g.Source, Buffers: append([]string(nil), g.Buffers...)}
	}
	return out
}
