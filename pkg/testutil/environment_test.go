// pkg/testutil/environment_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None
// PURPOSE: Test forum environment construction and file assertions

package testutil_test

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/modman/pkg/paths"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_Types(t *testing.T) {
	for _, tt := range []struct {
		name    string
		envType testutil.EnvType
	}{
		{"memory", testutil.EnvMemoryOnly},
		{"isolated", testutil.EnvIsolated},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnvironment(t, tt.envType)

			testutil.AssertFileContent(t, env.FS, env.Path("Sources/Load.php"), testutil.LoadPHP)
			testutil.AssertDirExists(t, env.FS, env.PkgDir)
			assert.Equal(t, env.Path("Sources"), env.Forum.Dir(paths.SourceDir))

			require.NoError(t, env.State.Put(&state.Record{ID: "author:x", Version: "1.0"}))
			assert.True(t, env.State.Installed("author:x"))
		})
	}
}

func TestEnvironment_MemoryOnly(t *testing.T) {
	env := testutil.NewEnvironment(t, testutil.EnvMemoryOnly)
	require.NotNil(t, env.Mem)
	assert.Equal(t, "/forum", env.Root)

	env.WithFiles(map[string]string{"Themes/default/style.css": "body{}"})
	testutil.AssertFileContains(t, env.FS, "/forum/Themes/default/style.css", "body")

	p := env.AddPackage("a.zip", []byte("zip"))
	assert.Equal(t, "/pkgs/a.zip", p)
	assert.Equal(t, "zip", testutil.ReadString(t, env.FS, p))
	testutil.AssertNotExists(t, env.FS, "/pkgs/b.zip")
}

func TestEnvironment_Isolated(t *testing.T) {
	env := testutil.NewEnvironment(t, testutil.EnvIsolated)
	assert.Nil(t, env.Mem)
	assert.True(t, filepath.IsAbs(env.Root))
	assert.FileExists(t, env.Path("Settings.php"))
	testutil.AssertExists(t, env.FS, env.Path("Themes/default/index.template.php"))
}
