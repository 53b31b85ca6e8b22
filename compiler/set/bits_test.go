package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	s := MakeBits[int]()

	s.SetAll(1, 70, 200)

	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(69))
	assert.Equal(t, 3, s.Size())

	s.Clear(70)

	assert.False(t, s.IsSet(70))
	assert.Equal(t, 2, s.Size())

	var got []int

	s.Range(func(k int) bool {
		got = append(got, k)
		return true
	})

	assert.Equal(t, []int{1, 200}, got)
}

func TestBitsMerge(t *testing.T) {
	a := MakeBits[int]()
	b := MakeBits[int]()

	a.Set(3)
	b.SetAll(3, 130)

	a.Merge(b)

	assert.True(t, a.IsSet(3))
	assert.True(t, a.IsSet(130))
	assert.Equal(t, 2, a.Size())

	a.Reset()

	assert.Equal(t, 0, a.Size())
}
