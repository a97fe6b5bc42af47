package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMBTilesSinkSaveAndHasRoundtrip(t *testing.T) {
	s, err := NewMBTilesSink(":memory:", 1)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(3, 1, 2, []byte("tile-bytes")))

	assert.True(t, s.Has(3, 1, 2))
	assert.False(t, s.Has(3, 1, 3))
}

func TestMBTilesSinkBatchesCommits(t *testing.T) {
	s, err := NewMBTilesSink(":memory:", 3)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(1, 0, 0, []byte("a")))
	require.NoError(t, s.Save(1, 1, 0, []byte("b")))
	// third save in the batch commits the open transaction
	require.NoError(t, s.Save(1, 2, 0, []byte("c")))

	assert.True(t, s.Has(1, 0, 0))
	assert.True(t, s.Has(1, 2, 0))
}

func TestMBTilesSinkVisitAll(t *testing.T) {
	s, err := NewMBTilesSink(":memory:", 1)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(0, 0, 0, []byte("root")))

	var visited int
	err = s.VisitAll(func(z, x, y uint32, data []byte) {
		visited++
		assert.Equal(t, []byte("root"), data)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visited)
}
