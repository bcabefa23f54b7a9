package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/factdb/kv"
	"github.com/hupe1980/factdb/schema"
	"github.com/hupe1980/factdb/value"
)

func TestCompactString(t *testing.T) {
	for _, s := range []string{"", "Q42", "naïve", "東京", "a|b@c@@i"} {
		b := AppendString(nil, s)
		got, err := ReadString(b)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	t.Run("ascii header has no flag", func(t *testing.T) {
		assert.Equal(t, []byte{6, 'Q', '4', '2'}, AppendString(nil, "Q42"))
	})

	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := ReadString([]byte{2<<1 | utf8Flag, 0xff, 0xfe})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("non-ascii without flag", func(t *testing.T) {
		_, err := ReadString([]byte{1 << 1, 0xc3})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadString([]byte{10 << 1, 'a'})
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := ReadString(append(AppendString(nil, "x"), 0))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestValueRoundTrip(t *testing.T) {
	f := newFixture(t)

	person, err := value.NewRecordValues(f.person, f.str(f.entity, "Q1"), f.str(f.text, "30"))
	require.NoError(t, err)
	coord, err := value.NewRecordValues(f.coord, f.str(f.text, "52.5|13.4"), f.str(f.text, "@@i@"))
	require.NoError(t, err)
	doc, err := value.NewObject(f.doc,
		value.Pair("author", f.str(f.entity, "Q5")),
		value.Pair("title", f.str(f.text, "Über")),
		value.Pair("who", person),
		value.Pair("where", coord),
		value.Pair("author", f.str(f.entity, "Q6")),
	)
	require.NoError(t, err)
	inner, err := value.NewObject(f.doc, value.Pair("note", f.str(f.text, "x")))
	require.NoError(t, err)
	outer, err := value.NewObject(f.doc, value.Pair("child", inner), value.Pair("empty", mustObject(t, f.doc)))
	require.NoError(t, err)

	tests := []struct {
		name string
		v    value.Value
	}{
		{"dictionary string", f.str(f.entity, "Q42")},
		{"inline string", f.str(f.text, "hello, wörld")},
		{"empty inline string", f.str(f.text, "")},
		{"record", person},
		{"packed record", coord},
		{"object", doc},
		{"nested objects", outer},
		{"empty object", mustObject(t, f.doc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := f.r.c.AppendValue(nil, tt.v, true)
			require.NoError(t, err)

			got, err := f.r.c.DecodeValue(b, tt.v.Sort())
			require.NoError(t, err)
			assert.True(t, value.Equal(tt.v, got), "want %s, got %s", tt.v, got)

			inl, err := f.r.c.AppendInline(nil, tt.v, false)
			require.NoError(t, err)
			got, err = f.r.c.DecodeInline(inl, tt.v.Sort())
			require.NoError(t, err)
			assert.True(t, value.Equal(tt.v, got), "want %s, got %s", tt.v, got)
		})
	}
}

func mustObject(t *testing.T, s *schema.Sort, pairs ...value.PropertyValue) *value.Object {
	t.Helper()
	o, err := value.NewObject(s, pairs...)
	require.NoError(t, err)
	return o
}

func TestAppendValueLookupMode(t *testing.T) {
	f := newFixture(t)

	person, err := value.NewRecordValues(f.person, f.str(f.entity, "Q1"), f.str(f.text, "30"))
	require.NoError(t, err)

	_, err = f.r.c.AppendValue(nil, person, false)
	require.ErrorIs(t, err, ErrAbsent)
	assert.Zero(t, f.r.allocs)

	first, err := f.r.c.AppendValue(nil, person, true)
	require.NoError(t, err)
	again, err := f.r.c.AppendValue(nil, person, false)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestAppendValueForeignSort(t *testing.T) {
	f := newFixture(t)

	// Same name, different registry and id.
	m, err := kv.NewStore(kv.NewMemory()).Map("sorts")
	require.NoError(t, err)
	other, err := schema.NewRegistry(m)
	require.NoError(t, err)
	_, err = other.RegisterOrGet(schema.StringSort("padding"))
	require.NoError(t, err)
	foreign, err := other.RegisterOrGet(schema.StringSort("entity"))
	require.NoError(t, err)

	_, err = f.r.c.AppendValue(nil, value.MustString(foreign, "Q1"), true)
	require.ErrorIs(t, err, schema.ErrSchemaMismatch)

	unknown, err := other.RegisterOrGet(schema.StringSort("nowhere"))
	require.NoError(t, err)
	_, err = f.r.c.AppendValue(nil, value.MustString(unknown, "Q1"), true)
	require.ErrorIs(t, err, schema.ErrUnknownSort)
	assert.Zero(t, f.r.allocs)
}

func TestObjectRejectsBadSlotBeforeAllocating(t *testing.T) {
	f := newFixture(t)

	m, err := kv.NewStore(kv.NewMemory()).Map("sorts")
	require.NoError(t, err)
	other, err := schema.NewRegistry(m)
	require.NoError(t, err)
	stray, err := other.RegisterOrGet(schema.StringSort("stray"))
	require.NoError(t, err)

	doc := mustObject(t, f.doc,
		value.Pair("ok", f.str(f.entity, "Q1")),
		value.Pair("bad", value.MustString(stray, "x")),
	)
	_, err = f.r.c.AppendValue(nil, doc, true)
	require.Error(t, err)
	assert.Zero(t, f.r.allocs)
}

func TestDecodeCorrupt(t *testing.T) {
	f := newFixture(t)

	doc := mustObject(t, f.doc,
		value.Pair("a", f.str(f.entity, "Q1")),
		value.Pair("b", f.str(f.text, "t")),
	)
	b, err := f.r.c.AppendInline(nil, doc, true)
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		for i := 0; i < len(b); i++ {
			_, err := f.r.c.DecodeInline(b[:i], f.doc)
			assert.Error(t, err, "prefix %d", i)
		}
	})

	t.Run("trailing", func(t *testing.T) {
		_, err := f.r.c.DecodeInline(append(append([]byte{}, b...), 0), f.doc)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("unknown tag", func(t *testing.T) {
		bad := append([]byte{}, b...)
		// count, two property ids, then the tags.
		bad[3] = 7
		_, err := f.r.c.DecodeInline(bad, f.doc)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("tag disagrees with sort", func(t *testing.T) {
		bad := append([]byte{}, b...)
		bad[3] = slotInline
		_, err := f.r.c.DecodeInline(bad, f.doc)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.r.c.DecodeValue([]byte{99}, f.entity)
		assert.ErrorIs(t, err, schema.ErrUnknownID)
	})
}
