package edge

import (
	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/value"
)

// View is one source's edge container as stored. Property lookups read the
// skeleton row only; the payload rows are fetched when targets are first
// walked. A View is not safe for concurrent use.
type View struct {
	r *codec.EdgeReader
}

// SourceID returns the source's dictionary id.
func (v *View) SourceID() value.ID { return v.r.SourceID() }

// Source decodes the source value.
func (v *View) Source() (value.Value, error) { return v.r.Source() }

// NumProperties returns the number of distinct outgoing properties.
func (v *View) NumProperties() int { return v.r.NumProperties() }

// Properties returns a cursor over the outgoing properties.
func (v *View) Properties() *codec.PropertyCursor { return v.r.Properties() }

// Reader exposes the underlying edge reader.
func (v *View) Reader() *codec.EdgeReader { return v.r }

// Has reports whether the source has an outgoing property with this name.
func (v *View) Has(property string) (bool, error) {
	_, ok, err := v.find(property)
	return ok, err
}

// Targets returns the targets of the named property. ok=false if the source
// has no such property.
func (v *View) Targets(property string) (*codec.TargetCursor, bool, error) {
	pid, ok, err := v.find(property)
	if err != nil || !ok {
		return nil, false, err
	}
	return v.r.Find(pid)
}

func (v *View) find(property string) (value.ID, bool, error) {
	pc := v.r.Properties()
	for pc.Next() {
		sig, err := pc.Signature()
		if err != nil {
			return 0, false, err
		}
		if sig.Name == property {
			return pc.PropertyID(), true, nil
		}
	}
	return 0, false, pc.Err()
}

// Materialize decodes the whole container.
func (v *View) Materialize() (*value.EdgeContainer, error) { return v.r.Materialize() }
