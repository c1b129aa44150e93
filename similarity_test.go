package main

import (
	"fmt"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fpFromBits(t *testing.T, bits uint64) Fingerprint {
	t.Helper()
	fp, err := ParseFingerprint(fmt.Sprintf("%016x", bits))
	require.NoError(t, err)
	return fp
}

func TestQueryMatchesWithinThreshold(t *testing.T) {
	idx := NewSimilarityIndex()
	idx.Insert(snowflake.ID(1), fpFromBits(t, 0x00))
	idx.Insert(snowflake.ID(2), fpFromBits(t, 0xFF))       // 8 bits apart
	idx.Insert(snowflake.ID(3), fpFromBits(t, 0xFFFFFFFF)) // 32 bits apart

	matches := idx.Query(fpFromBits(t, 0x00))
	require.Len(t, matches, 2)
	assert.Equal(t, snowflake.ID(1), matches[0].ID)
	assert.Equal(t, 0, matches[0].Distance)
	assert.Equal(t, snowflake.ID(2), matches[1].ID)
	assert.Equal(t, 8, matches[1].Distance)
}

func TestQueryExcludesAtThreshold(t *testing.T) {
	idx := NewSimilarityIndex()
	idx.Insert(snowflake.ID(1), fpFromBits(t, 0x1FF)) // exactly 9 bits apart

	assert.Empty(t, idx.Query(fpFromBits(t, 0x00)))
}

func TestQueryCapsMatches(t *testing.T) {
	idx := NewSimilarityIndex()
	// Seven entries at distances 1..7 from zero.
	for i := 1; i <= 7; i++ {
		idx.Insert(snowflake.ID(i), fpFromBits(t, 1<<uint(i)-1))
	}

	matches := idx.Query(fpFromBits(t, 0x00))
	require.Len(t, matches, DuplicateMatchLimit)
	for i, m := range matches {
		assert.Equal(t, i+1, m.Distance)
	}
}

func TestInsertIgnoresZeroFingerprint(t *testing.T) {
	idx := NewSimilarityIndex()
	idx.Insert(snowflake.ID(1), Fingerprint{})
	assert.Zero(t, idx.Len())
}

func TestRemove(t *testing.T) {
	idx := NewSimilarityIndex()
	idx.Insert(snowflake.ID(1), fpFromBits(t, 0x00))
	require.Len(t, idx.Query(fpFromBits(t, 0x00)), 1)

	idx.Remove(snowflake.ID(1))
	assert.Empty(t, idx.Query(fpFromBits(t, 0x00)))
	assert.Zero(t, idx.Len())
}
