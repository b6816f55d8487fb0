package testutil

import (
	"testing"

	"github.com/arthur-debert/modman/pkg/types"
	"github.com/stretchr/testify/assert"
)

// ReadString returns the content of path, failing the test if it cannot be read.
func ReadString(t *testing.T, fsys types.FS, path string) string {
	t.Helper()
	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

// AssertFileContent checks that path exists and holds exactly want.
func AssertFileContent(t *testing.T, fsys types.FS, path, want string, msgAndArgs ...interface{}) bool {
	t.Helper()
	data, err := fsys.ReadFile(path)
	if !assert.NoError(t, err, msgAndArgs...) {
		return false
	}
	return assert.Equal(t, want, string(data), msgAndArgs...)
}

// AssertFileContains checks that path exists and contains substr.
func AssertFileContains(t *testing.T, fsys types.FS, path, substr string, msgAndArgs ...interface{}) bool {
	t.Helper()
	data, err := fsys.ReadFile(path)
	if !assert.NoError(t, err, msgAndArgs...) {
		return false
	}
	return assert.Contains(t, string(data), substr, msgAndArgs...)
}

// AssertExists checks that path is present, as a file or a directory.
func AssertExists(t *testing.T, fsys types.FS, path string, msgAndArgs ...interface{}) bool {
	t.Helper()
	_, err := fsys.Stat(path)
	return assert.NoError(t, err, msgAndArgs...)
}

// AssertNotExists checks that path is absent.
func AssertNotExists(t *testing.T, fsys types.FS, path string, msgAndArgs ...interface{}) bool {
	t.Helper()
	if _, err := fsys.Stat(path); err == nil {
		return assert.Fail(t, "path exists: "+path, msgAndArgs...)
	}
	return true
}

// AssertDirExists checks that path is a directory.
func AssertDirExists(t *testing.T, fsys types.FS, path string, msgAndArgs ...interface{}) bool {
	t.Helper()
	info, err := fsys.Stat(path)
	if !assert.NoError(t, err, msgAndArgs...) {
		return false
	}
	return assert.True(t, info.IsDir(), msgAndArgs...)
}
