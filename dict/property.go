package dict

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/factdb/codec"
	"github.com/hupe1980/factdb/internal/conv"
	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

// PropertyNamespace is the namespace prefix of the property dictionary.
const PropertyNamespace = "properties"

// MetaNamespace holds the id counters of every table.
const MetaNamespace = "meta"

// propertyEncoding keys a signature as
// [len(name) uvarint][name][domain uvarint][range uvarint].
type propertyEncoding struct {
	reg *schema.Registry
}

func (e propertyEncoding) Key(sig schema.PropertySignature, _ bool) ([]byte, error) {
	if sig.Name == "" {
		return nil, schema.Mismatch("", -1, "empty property name", "name", `""`)
	}
	if _, err := e.reg.ByID(sig.Domain); err != nil {
		return nil, fmt.Errorf("property %q domain: %w", sig.Name, err)
	}
	if _, err := e.reg.ByID(sig.Range); err != nil {
		return nil, fmt.Errorf("property %q range: %w", sig.Name, err)
	}
	key := make([]byte, 0, len(sig.Name)+3*binary.MaxVarintLen32)
	key = binary.AppendUvarint(key, uint64(len(sig.Name)))
	key = append(key, sig.Name...)
	key = binary.AppendUvarint(key, uint64(sig.Domain))
	return binary.AppendUvarint(key, uint64(sig.Range)), nil
}

func (e propertyEncoding) Decode(key []byte) (schema.PropertySignature, error) {
	var sig schema.PropertySignature
	l, n := binary.Uvarint(key)
	if n <= 0 {
		return sig, fmt.Errorf("%w: property name length", codec.ErrCorrupt)
	}
	key = key[n:]
	ln, err := conv.Bounded(l, len(key))
	if err != nil {
		return sig, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}
	sig.Name = string(key[:ln])
	key = key[ln:]

	d, n := binary.Uvarint(key)
	if n <= 0 {
		return sig, fmt.Errorf("%w: property domain", codec.ErrCorrupt)
	}
	key = key[n:]
	r, n := binary.Uvarint(key)
	if n <= 0 || n != len(key) {
		return sig, fmt.Errorf("%w: property range", codec.ErrCorrupt)
	}

	dom, err := conv.Uint64ToUint32(d)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}
	rng, err := conv.Uint64ToUint32(r)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}
	sig.Domain, sig.Range = schema.SortID(dom), schema.SortID(rng)
	return sig, nil
}

// PropertyDictionary interns (name, domain, range) signatures. The same name
// between different sort pairs receives distinct ids.
type PropertyDictionary struct {
	*Table[schema.PropertySignature]
	reg *schema.Registry
}

// NewPropertyDictionary opens the property dictionary.
func NewPropertyDictionary(reg *schema.Registry, store kv.Store, cacheSize int) (*PropertyDictionary, error) {
	t, err := NewTable[schema.PropertySignature](store, PropertyNamespace, propertyEncoding{reg: reg}, cacheSize)
	if err != nil {
		return nil, err
	}
	return &PropertyDictionary{Table: t, reg: reg}, nil
}

// GetOrCreate interns the signature of name between two named sorts.
func (d *PropertyDictionary) GetOrCreate(name, domain, rng string) (value.ID, error) {
	sig, err := d.Signature(name, domain, rng)
	if err != nil {
		return 0, err
	}
	return d.GetOrCreateID(sig)
}

// Signature builds a signature from sort names.
func (d *PropertyDictionary) Signature(name, domain, rng string) (schema.PropertySignature, error) {
	ds, err := d.reg.ByName(domain)
	if err != nil {
		return schema.PropertySignature{}, err
	}
	rs, err := d.reg.ByName(rng)
	if err != nil {
		return schema.PropertySignature{}, err
	}
	return schema.PropertySignature{Name: name, Domain: ds.ID(), Range: rs.ID()}, nil
}

var _ Dictionary[schema.PropertySignature] = (*PropertyDictionary)(nil)
