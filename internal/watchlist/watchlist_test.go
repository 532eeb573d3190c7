package watchlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSkipsCommentsAndBlanks(t *testing.T) {
	s, err := Read(strings.NewReader("# watched\n\n  120045  \n120046\n#120047\n120045\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"120045", "120046"}, s.Sorted())
	assert.True(t, s.Has("120046"))
	assert.False(t, s.Has("120047"))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	s, err = Load("")
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestLoadAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("3\n4\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	merged := s.Merge(New("1", " ", "3"))
	assert.Equal(t, []string{"1", "3", "4"}, merged.Sorted())
	assert.Equal(t, 2, s.Len())
}
