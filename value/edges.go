package value

import (
	"fmt"

	"github.com/hupe1980/factdb/schema"
)

// EdgeContainer is the adjacency record of one source value.
type EdgeContainer struct {
	Source     Value
	Properties []PropertyTargets
}

// PropertyTargets holds every edge instance of one outgoing property, in
// insertion order. Repeated targets are kept.
type PropertyTargets struct {
	Property string
	Targets  []TargetQualifiers
}

// TargetQualifiers is one edge instance: its target and its qualifiers.
// Qualifiers have set semantics; several qualifiers may share a property.
type TargetQualifiers struct {
	Target     Value
	Qualifiers []PropertyValue
}

// NewEdgeContainer creates an empty container for source.
func NewEdgeContainer(source Value) *EdgeContainer {
	return &EdgeContainer{Source: source}
}

// Add appends one edge instance. Properties keep first-seen order.
func (c *EdgeContainer) Add(property string, target Value, qualifiers ...PropertyValue) *EdgeContainer {
	tq := TargetQualifiers{Target: target, Qualifiers: qualifiers}
	for i := range c.Properties {
		if c.Properties[i].Property == property {
			c.Properties[i].Targets = append(c.Properties[i].Targets, tq)
			return c
		}
	}
	c.Properties = append(c.Properties, PropertyTargets{Property: property, Targets: []TargetQualifiers{tq}})
	return c
}

// NumEdges returns the total number of edge instances.
func (c *EdgeContainer) NumEdges() int {
	n := 0
	for _, p := range c.Properties {
		n += len(p.Targets)
	}
	return n
}

// Validate checks the structural rules an encoder relies on: a sorted source,
// non-empty property names, at least one target per property, and one target
// sort per property.
func (c *EdgeContainer) Validate() error {
	if c.Source == nil || c.Source.Sort() == nil {
		return schema.Mismatch("", -1, "edge container without source", "value", "nil")
	}
	domain := c.Source.Sort().Name()
	for i, p := range c.Properties {
		if p.Property == "" {
			return schema.Mismatch(domain, i, "empty edge property", "name", `""`)
		}
		if len(p.Targets) == 0 {
			return schema.Mismatch(domain, i, fmt.Sprintf("property %q has no targets", p.Property), ">= 1 target", "0 targets")
		}
		var rangeSort string
		for j, t := range p.Targets {
			if t.Target == nil || t.Target.Sort() == nil {
				return schema.Mismatch(domain, i, fmt.Sprintf("target %d of %q is nil", j, p.Property), "value", "nil")
			}
			name := t.Target.Sort().Name()
			if j == 0 {
				rangeSort = name
			} else if name != rangeSort {
				return schema.Mismatch(domain, i, fmt.Sprintf("mixed target sorts for %q", p.Property), rangeSort, name)
			}
			for k, q := range t.Qualifiers {
				if q.Property == "" || q.Value == nil || q.Value.Sort() == nil {
					return schema.Mismatch(domain, i, fmt.Sprintf("qualifier %d of target %d of %q is incomplete", k, j, p.Property), "(property, value)", fmt.Sprintf("(%q, %v)", q.Property, q.Value))
				}
			}
		}
	}
	return nil
}

// Equal compares two containers. Properties and targets compare in order;
// qualifiers compare as multisets.
func (c *EdgeContainer) Equal(o *EdgeContainer) bool {
	if c == nil || o == nil {
		return c == nil && o == nil
	}
	if !Equal(c.Source, o.Source) || len(c.Properties) != len(o.Properties) {
		return false
	}
	for i, p := range c.Properties {
		q := o.Properties[i]
		if p.Property != q.Property || len(p.Targets) != len(q.Targets) {
			return false
		}
		for j, t := range p.Targets {
			u := q.Targets[j]
			if !Equal(t.Target, u.Target) || !sameQualifiers(t.Qualifiers, u.Qualifiers) {
				return false
			}
		}
	}
	return true
}

func sameQualifiers(a, b []PropertyValue) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, x := range a {
		for i, y := range b {
			if !used[i] && x.Property == y.Property && Equal(x.Value, y.Value) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}
