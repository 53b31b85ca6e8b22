package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnion(t *testing.T) {
	assert.Equal(t, Interval{3, 9}, Union(Interval{3, 5}, Interval{4, 9}))
	assert.Equal(t, Interval{0, 9}, Union(Interval{4, 9}, Interval{0, 2}))
	assert.Equal(t, Point(7), Union(Point(7), Point(7)))
}

func TestExtend(t *testing.T) {
	i := Point(5)

	i.ExtendStart(3)
	i.ExtendEnd(9)

	assert.Equal(t, Interval{3, 9}, i)

	i.ExtendStart(4) // never shrinks
	i.ExtendEnd(8)

	assert.Equal(t, Interval{3, 9}, i)
}

func TestEdges(t *testing.T) {
	i := Interval{2, 6}

	assert.False(t, i.IsInsideWrite(2))
	assert.True(t, i.IsInsideWrite(3))
	assert.False(t, i.IsInsideWrite(6))

	assert.True(t, i.AliveForReading(2))
	assert.True(t, i.AliveForReading(6))
	assert.False(t, i.AliveForReading(1))
	assert.False(t, i.AliveForReading(7))
}

func TestSplitRoundTrip(t *testing.T) {
	orig := Interval{0, 10}

	head := orig
	tail := head.Split(4)

	require.Equal(t, Interval{0, 4}, head)
	require.Equal(t, Interval{4, 10}, tail)

	// the fragments reconstruct the original coverage
	assert.Equal(t, orig, Union(head, tail))

	mid := tail
	back := mid.Split(8)

	assert.Equal(t, Interval{4, 8}, mid)
	assert.Equal(t, Interval{8, 10}, back)
	assert.Equal(t, orig, Union(head, Union(mid, back)))
}
