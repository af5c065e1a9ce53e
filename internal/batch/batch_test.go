package batch

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submission(t int) ([]float64, []float32, float64) {
	return []float64{float64(t), float64(t) + 0.5}, []float32{float32(t)}, float64(10 * t)
}

func TestConverterPairsConsecutiveTicks(t *testing.T) {
	w := &MemoryWriter{}
	c := NewConverter(w)

	for tick := 0; tick < 6; tick++ {
		a, o, r := submission(tick)
		emitted, err := c.Submit(tick, a, o, r)
		require.NoError(t, err)
		assert.Equal(t, tick > 0, emitted, "tick %d", tick)
	}

	got := w.All()
	require.Len(t, got, 5)
	assert.Equal(t, 5, c.Emitted())
	assert.Equal(t, 1, c.Pending())

	first := got[0]
	assert.Equal(t, 1, first.T)
	assert.Equal(t, []float32{0}, first.Obs)
	assert.Equal(t, []float32{1}, first.NewObs)
	assert.Equal(t, []float64{1, 1.5}, first.Actions)
	assert.Equal(t, []float64{0, 0.5}, first.PrevActions)
	assert.Equal(t, 10.0, first.Reward)
	assert.Equal(t, 0.0, first.PrevReward)
	assert.True(t, first.Done)
	assert.Equal(t, 1.0, first.ActionProb)
}

func TestConverterIgnoresNonContiguousTicks(t *testing.T) {
	w := &MemoryWriter{}
	c := NewConverter(w)

	for _, tick := range []int{5, 3} {
		a, o, r := submission(tick)
		emitted, err := c.Submit(tick, a, o, r)
		require.NoError(t, err)
		assert.False(t, emitted)
	}
	assert.Empty(t, w.All())

	a, o, r := submission(4)
	emitted, err := c.Submit(4, a, o, r)
	require.NoError(t, err)
	assert.True(t, emitted)

	got := w.All()
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].T)
	assert.Equal(t, []float32{3}, got[0].Obs)
	// 5 is still waiting for 6.
	assert.Equal(t, 2, c.Pending())
}

func TestJSONWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "batches")
	w, err := NewJSONWriter(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(w.Path()), "output-"))

	c := NewConverter(w)
	_, err = c.Submit(1, []float64{0.1}, []float32{1, 2}, 3)
	require.NoError(t, err)
	_, err = c.Submit(2, []float64{0.2}, []float32{3, 4}, math.NaN())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 1)

	row := lines[0]
	assert.Equal(t, "SampleBatch", row["type"])
	assert.Equal(t, []any{float64(2)}, row["t"])
	assert.Equal(t, []any{[]any{float64(1), float64(2)}}, row["obs"])
	assert.Equal(t, []any{[]any{float64(3), float64(4)}}, row["new_obs"])
	assert.Equal(t, []any{nil}, row["rewards"])
	assert.Equal(t, []any{float64(3)}, row["prev_rewards"])
	assert.Equal(t, []any{true}, row["dones"])
}
