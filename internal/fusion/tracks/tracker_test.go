package tracks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	tr := newTracker(7, fusedAt(1, 0, 0), 1)
	assert.Equal(t, uint64(7), tr.ID())
	assert.Equal(t, TrackTentative, tr.State())
	assert.False(t, tr.IsActive())
	assert.Equal(t, 1, tr.Hits())

	first := tr.Last()
	tr.update(fusedAt(2, 1, 0), 2)
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, first, tr.History()[0], "update never touches earlier entries")
	assert.Equal(t, uint64(2), tr.LastFrame())

	tr.markMissed()
	assert.Equal(t, 2, tr.Hits())
	assert.Equal(t, 1, tr.Misses())
	assert.Equal(t, 2, tr.Len())

	assert.False(t, tr.promote(3))
	assert.True(t, tr.promote(2))
	assert.True(t, tr.IsActive())
	assert.False(t, tr.promote(2), "promotion happens once")

	assert.False(t, tr.retire(1))
	tr.markMissed()
	assert.True(t, tr.retire(1))
	assert.Equal(t, TrackRetired, tr.State())
	assert.False(t, tr.promote(1), "retired is terminal")
	assert.False(t, tr.retire(0))
	assert.Equal(t, TrackRetired, tr.State())
}

func TestTracker_HistoryIsACopy(t *testing.T) {
	t.Parallel()

	tr := newTracker(1, fusedAt(1, 0, 0), 1)
	h := tr.History()
	h[0].Box2D.X1 = 1234
	assert.NotEqual(t, 1234.0, tr.Last().Box2D.X1)

	last := tr.Last()
	last.Camera.ID = 99
	assert.Equal(t, int64(1), tr.Last().Camera.ID)
}
