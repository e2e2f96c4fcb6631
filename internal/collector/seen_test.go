package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenIndex_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "seen.bloom")

	idx, err := LoadSeenIndex(path)
	require.NoError(t, err)
	assert.False(t, idx.Seen("NA1_1"))

	idx.Mark("NA1_1")
	assert.True(t, idx.Seen("NA1_1"))
	assert.Equal(t, 1, idx.Added())
	require.NoError(t, idx.Save())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reloaded, err := LoadSeenIndex(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Seen("NA1_1"))
	assert.False(t, reloaded.Seen("NA1_2"))
	assert.Zero(t, reloaded.Added())
}

func TestSeenIndex_InMemorySaveIsNoop(t *testing.T) {
	idx := NewSeenIndex()
	idx.Mark("KR_1")
	assert.NoError(t, idx.Save())
}

func TestSeenIndex_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.bloom")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	_, err := LoadSeenIndex(path)
	assert.Error(t, err)
}

func TestMatchIDSet(t *testing.T) {
	set := NewMatchIDSet()
	assert.True(t, set.Add("B"))
	assert.True(t, set.Add("A"))
	assert.False(t, set.Add("B"))
	assert.False(t, set.Add(""))

	assert.Equal(t, []string{"B", "A"}, set.IDs())
	assert.True(t, set.Contains("A"))
	assert.Equal(t, 2, set.Len())
}
