package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c := NewCache(10)
	lines := []Line{{MoveUCI: "e2e4", Score: Cp(25), Rank: 1}}

	_, ok := c.Get("fen1", 12, 1)
	assert.False(t, ok)

	c.Put("fen1", 12, 1, lines)

	got, ok := c.Get("fen1", 12, 1)
	require.True(t, ok)
	assert.Equal(t, lines, got)

	// Same position at a different depth is a separate entry.
	_, ok = c.Get("fen1", 14, 1)
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewCache(2)

	c.Put("a", 10, 1, []Line{{MoveUCI: "a", Rank: 1}})
	c.Put("b", 10, 1, []Line{{MoveUCI: "b", Rank: 1}})

	// Touch "a" so "b" becomes the eviction victim.
	_, ok := c.Get("a", 10, 1)
	require.True(t, ok)

	c.Put("c", 10, 1, []Line{{MoveUCI: "c", Rank: 1}})

	_, ok = c.Get("b", 10, 1)
	assert.False(t, ok)

	_, ok = c.Get("a", 10, 1)
	assert.True(t, ok)

	assert.Equal(t, 2, c.Len())
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eval.cache")

	c := NewCache(100)
	c.Put("fen1", 12, 1, []Line{{MoveUCI: "e2e4", Score: Cp(31), Rank: 1}})
	c.Put("fen2", 12, 2, []Line{
		{MoveUCI: "d2d4", Score: MateIn(3), Rank: 1},
		{MoveUCI: "g1f3", Score: Cp(15), Rank: 2},
	})

	require.NoError(t, c.Save(path))

	restored := NewCache(100)
	require.NoError(t, restored.Load(path))

	got, ok := restored.Get("fen2", 12, 2)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, MateIn(3), got[0].Score)

	assert.Equal(t, 2, restored.Len())
}

func TestCache_LoadMissingFileStartsCold(t *testing.T) {
	t.Parallel()

	c := NewCache(10)

	require.NoError(t, c.Load(filepath.Join(t.TempDir(), "absent.cache")))
	assert.Equal(t, 0, c.Len())
}

func TestCached_HitsSkipInnerEvaluator(t *testing.T) {
	t.Parallel()

	inner := &stubEval{lines: []Line{{MoveUCI: "e2e4", Score: Cp(10), Rank: 1}}}
	cached := &Cached{Inner: inner, Cache: NewCache(10)}

	_, err := cached.Analyze(context.Background(), "fen", 10, 1)
	require.NoError(t, err)

	_, err = cached.Analyze(context.Background(), "fen", 10, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	inner := &stubEval{err: ErrUnanalyzable}
	cached := &Cached{Inner: inner, Cache: NewCache(10)}

	_, err := cached.Analyze(context.Background(), "fen", 10, 1)
	require.ErrorIs(t, err, ErrUnanalyzable)

	_, err = cached.Analyze(context.Background(), "fen", 10, 1)
	require.ErrorIs(t, err, ErrUnanalyzable)

	assert.Equal(t, 2, inner.calls)
}
