//go:build amd64 || arm64

package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	assert.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestUint64ToUint32(t *testing.T) {
	got, err := Uint64ToUint32(math.MaxUint32)
	assert.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	_, err = Uint64ToUint32(math.MaxUint32 + 1)
	assert.Error(t, err)
}

func TestBounded(t *testing.T) {
	t.Run("within buffer", func(t *testing.T) {
		got, err := Bounded(3, 3)
		assert.NoError(t, err)
		assert.Equal(t, 3, got)
	})

	t.Run("exceeds buffer", func(t *testing.T) {
		_, err := Bounded(4, 3)
		assert.Error(t, err)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := Bounded(math.MaxUint64, math.MaxInt)
		assert.Error(t, err)
	})
}
