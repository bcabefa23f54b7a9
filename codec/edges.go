package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// EdgeRows is the encoded form of one EdgeContainer, split into three rows so
// that "does source X have property P" only touches the small skeleton.
//
// Skeleton layout (all integers uvarint):
//
//	sourceID propCount tableLen
//	table:    propCount × (propertyID targetCount sectionOff refsOff valuesOff)
//	sections: per property, per target: qualCount, qualCount × qualPropertyID
//
// Refs holds the ids of dictionary-backed targets and qualifier values, Values
// holds length-prefixed inline encodings, both in encoding order. The offsets
// in the table point into the sections area, Refs and Values respectively.
type EdgeRows struct {
	Skeleton []byte
	Refs     []byte
	Values   []byte
}

// Size returns the total encoded size.
func (r EdgeRows) Size() int {
	return len(r.Skeleton) + len(r.Refs) + len(r.Values)
}

// CheckEdges validates ec and resolves the sorts of its source, targets and
// qualifier values without creating any id. Errors inside nested record or
// object values are only found by EncodeEdges.
func (c *Codec) CheckEdges(ec *value.EdgeContainer) error {
	_, _, err := c.checkEdges(ec)
	return err
}

func (c *Codec) checkEdges(ec *value.EdgeContainer) (*schema.Sort, []*schema.Sort, error) {
	if ec == nil {
		return nil, nil, schema.Mismatch("", -1, "nil edge container", "edge container", "nil")
	}
	if err := ec.Validate(); err != nil {
		return nil, nil, err
	}
	domain, err := c.sortOf(ec.Source)
	if err != nil {
		return nil, nil, err
	}

	targetSorts := make([]*schema.Sort, len(ec.Properties))
	for i, p := range ec.Properties {
		for j, t := range p.Targets {
			ts, err := c.sortOf(t.Target)
			if err != nil {
				return nil, nil, fmt.Errorf("property %q target %d: %w", p.Property, j, err)
			}
			targetSorts[i] = ts
			for k, q := range t.Qualifiers {
				if _, err := c.sortOf(q.Value); err != nil {
					return nil, nil, fmt.Errorf("property %q target %d qualifier %d: %w", p.Property, j, k, err)
				}
			}
		}
	}
	return domain, targetSorts, nil
}

// EncodeEdges encodes ec for the source with the given dictionary id.
//
// Target property signatures are (property, source sort, target sort);
// qualifier signatures are (qualifier, target sort, qualifier sort).
//
// Sort errors are reported before any id is created. A nested value that
// fails to encode can leave ids created for earlier positions; they stay
// allocated and unused.
func (c *Codec) EncodeEdges(sourceID value.ID, ec *value.EdgeContainer, create bool) (EdgeRows, error) {
	domain, targetSorts, err := c.checkEdges(ec)
	if err != nil {
		return EdgeRows{}, err
	}

	var table, sections, refs, values []byte
	var scratch []byte

	appendAt := func(s *schema.Sort, v value.Value) error {
		if s.UseDictionary() {
			id, ok, err := c.r.ValueID(v, create)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s value %s", ErrAbsent, s.Name(), v)
			}
			refs = binary.AppendUvarint(refs, uint64(id))
			return nil
		}
		var err error
		scratch, err = c.appendInline(scratch[:0], s, v, create)
		if err != nil {
			return err
		}
		values = appendPrefixed(values, scratch)
		return nil
	}

	for i, p := range ec.Properties {
		ts := targetSorts[i]
		pid, err := c.propertyID(schema.PropertySignature{Name: p.Property, Domain: domain.ID(), Range: ts.ID()}, create)
		if err != nil {
			return EdgeRows{}, err
		}

		table = binary.AppendUvarint(table, uint64(pid))
		table = binary.AppendUvarint(table, uint64(len(p.Targets)))
		table = binary.AppendUvarint(table, uint64(len(sections)))
		table = binary.AppendUvarint(table, uint64(len(refs)))
		table = binary.AppendUvarint(table, uint64(len(values)))

		for j, t := range p.Targets {
			if err := appendAt(ts, t.Target); err != nil {
				return EdgeRows{}, fmt.Errorf("property %q target %d: %w", p.Property, j, err)
			}
			sections = binary.AppendUvarint(sections, uint64(len(t.Qualifiers)))
			for k, q := range t.Qualifiers {
				qs, _ := c.sortOf(q.Value)
				qid, err := c.propertyID(schema.PropertySignature{Name: q.Property, Domain: ts.ID(), Range: qs.ID()}, create)
				if err != nil {
					return EdgeRows{}, fmt.Errorf("property %q target %d qualifier %d: %w", p.Property, j, k, err)
				}
				sections = binary.AppendUvarint(sections, uint64(qid))
				if err := appendAt(qs, q.Value); err != nil {
					return EdgeRows{}, fmt.Errorf("property %q target %d qualifier %d: %w", p.Property, j, k, err)
				}
			}
		}
	}

	skel := make([]byte, 0, 3*binary.MaxVarintLen64+len(table)+len(sections))
	skel = binary.AppendUvarint(skel, uint64(sourceID))
	skel = binary.AppendUvarint(skel, uint64(len(ec.Properties)))
	skel = binary.AppendUvarint(skel, uint64(len(table)))
	skel = append(skel, table...)
	skel = append(skel, sections...)

	return EdgeRows{Skeleton: skel, Refs: refs, Values: values}, nil
}
