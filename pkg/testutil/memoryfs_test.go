// pkg/testutil/memoryfs_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Verify MemoryFS enforces write bits and supports error injection

package testutil_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/arthur-debert/modman/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFS_WriteRespectsModeBits(t *testing.T) {
	m := testutil.NewMemoryFS()
	require.NoError(t, m.MkdirAll("/forum/Sources", 0755))
	require.NoError(t, m.WriteFile("/forum/Sources/Load.php", []byte("a"), 0644))

	require.NoError(t, m.Chmod("/forum/Sources/Load.php", 0444))
	err := m.WriteFile("/forum/Sources/Load.php", []byte("b"), 0644)
	assert.ErrorIs(t, err, fs.ErrPermission)

	require.NoError(t, m.Chmod("/forum/Sources", 0555))
	err = m.WriteFile("/forum/Sources/New.php", []byte("c"), 0644)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.ErrorIs(t, m.Remove("/forum/Sources/Load.php"), fs.ErrPermission)

	require.NoError(t, m.Chmod("/forum/Sources", 0755))
	require.NoError(t, m.WriteFile("/forum/Sources/New.php", []byte("c"), 0644))

	info, err := m.Stat("/forum/Sources")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMemoryFS_RenameSubtree(t *testing.T) {
	m := testutil.NewMemoryFS()
	require.NoError(t, m.MkdirAll("/a/b", 0755))
	require.NoError(t, m.WriteFile("/a/b/c.txt", []byte("x"), 0644))

	require.NoError(t, m.Rename("/a", "/z"))

	data, err := m.ReadFile("/z/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	_, err = m.Stat("/a/b")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestMemoryFS_ErrorInjection(t *testing.T) {
	boom := errors.New("boom")
	m := testutil.NewMemoryFS().WithError("/broken.txt", boom)

	assert.ErrorIs(t, m.WriteFile("/broken.txt", nil, 0644), boom)
	_, err := m.ReadFile("/broken.txt")
	assert.ErrorIs(t, err, boom)

	reads, writes := m.Stats()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 1, writes)
}
