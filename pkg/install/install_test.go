// pkg/install/install_test.go
// TEST TYPE: Integration Test
// DEPENDENCIES: testutil.Environment (EnvMemoryOnly), archive fixtures
// PURPOSE: Test package install, upgrade and uninstall against an in-memory forum

package install_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/install"
	"github.com/arthur-debert/modman/pkg/manifest"
	"github.com/arthur-debert/modman/pkg/source"
	"github.com/arthur-debert/modman/pkg/state"
	"github.com/arthur-debert/modman/pkg/testutil"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loadPHP = testutil.LoadPHP

const testMod = `<id>
author:test
</id>

<edit file>
$sourcedir/Load.php
</edit file>

<search for>
// MARKER
</search for>

<replace>
// MARKER
echo 1;
</replace>
`

const installBlock = `<install for="2.0 - 2.0.99">
		<readme type="inline">Thanks for installing.</readme>
		<modification format="boardmod">test.mod</modification>
		<require-file name="Sources/Test.php" destination="$sourcedir" />
		<create-dir name="test_cache" destination="$boarddir" />
		<hook hook="integrate_actions" function="test_actions" file="$sourcedir/Test.php" />
	</install>`

const uninstallBlock = `<uninstall>
		<modification format="boardmod" reverse="true">test.mod</modification>
		<hook hook="integrate_actions" function="test_actions" reverse="true" />
		<remove-file name="$sourcedir/Test.php" />
		<remove-dir name="$boarddir/test_cache" />
	</uninstall>`

func packageInfo(version string, blocks ...string) string {
	out := fmt.Sprintf("<?xml version=\"1.0\"?>\n<package-info>\n\t<id>author:test</id>\n\t<name>Test Mod</name>\n\t<version>%s</version>\n", version)
	for _, b := range blocks {
		out += "\t" + b + "\n"
	}
	return out + "</package-info>\n"
}

type env struct {
	*testutil.Environment
	in *install.Installer
}

func newEnv(t *testing.T, mutate func(*install.Context)) *env {
	t.Helper()
	fx := testutil.NewEnvironment(t, testutil.EnvMemoryOnly)
	c := install.Context{
		FS:          fx.FS,
		Forum:       fx.Forum,
		State:       fx.State,
		Source:      source.NewFetcher(fx.FS, fx.CacheDir),
		HostVersion: "2.0.4",
	}
	if mutate != nil {
		mutate(&c)
	}
	return &env{Environment: fx, in: install.New(c)}
}

// publish writes an archive into the package directory and fetches it
func (e *env) publish(t *testing.T, name string, data []byte) *source.Package {
	t.Helper()
	pkg, err := source.NewFetcher(e.FS, e.CacheDir).Fetch(context.Background(), e.AddPackage(name, data))
	require.NoError(t, err)
	return pkg
}

func (e *env) read(t *testing.T, p string) string {
	t.Helper()
	return testutil.ReadString(t, e.FS, p)
}

func (e *env) exists(p string) bool {
	_, err := e.FS.Stat(p)
	return err == nil
}

func testPackage(t *testing.T, info string) []byte {
	return testutil.BuildTarGz(t, []testutil.ArchiveFile{
		{Name: "test_mod/", Dir: true},
		{Name: "test_mod/package-info.xml", Body: info},
		{Name: "test_mod/test.mod", Body: testMod},
		{Name: "test_mod/Sources/Test.php", Body: "<?php\nfunction test_actions() {}\n"},
	})
}

func TestInstall_AndRollback(t *testing.T) {
	e := newEnv(t, nil)
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock)))

	out, err := e.in.Install(context.Background(), pkg)
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)

	assert.Equal(t, manifest.PhaseInstall, out.Phase)
	assert.Equal(t, "Thanks for installing.", out.Readme)
	assert.Equal(t, "<?php\n// MARKER\necho 1;\n", e.read(t, "/forum/Sources/Load.php"))
	testutil.AssertFileContains(t, e.FS, "/forum/Sources/Test.php", "test_actions")
	testutil.AssertDirExists(t, e.FS, "/forum/test_cache")
	require.NotNil(t, out.Commit)
	assert.Contains(t, out.Commit.Written, "/forum/Sources/Load.php")

	rec, err := e.State.Get("author:test")
	require.NoError(t, err)
	assert.Equal(t, "1.0", rec.Version)
	assert.Equal(t, "/pkgs/test.tar.gz", rec.Source)
	assert.Equal(t, pkg.Digest, rec.Digest)
	require.Len(t, rec.Hooks, 1)
	assert.Equal(t, "test_actions", rec.Hooks[0].Function)

	var kinds []state.StepKind
	for _, s := range rec.Rollback {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []state.StepKind{state.StepUnpatch, state.StepRemove, state.StepRemove, state.StepUnhook}, kinds)

	// the package has no uninstall block, so the rollback is replayed
	out, err = e.in.Uninstall(context.Background(), "author:test")
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)
	assert.Equal(t, manifest.PhaseUninstall, out.Phase)

	testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
	testutil.AssertNotExists(t, e.FS, "/forum/Sources/Test.php")
	testutil.AssertNotExists(t, e.FS, "/forum/test_cache")
	assert.False(t, e.State.Installed("author:test"))

	hooks, err := e.State.Hooks()
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestUninstall_UsesPackageBlock(t *testing.T) {
	e := newEnv(t, nil)
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock, uninstallBlock)))

	_, err := e.in.Install(context.Background(), pkg)
	require.NoError(t, err)

	out, err := e.in.Uninstall(context.Background(), "author:test")
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)

	for _, r := range out.Results {
		assert.NotEqual(t, "rollback", r.Action, "uninstall block is used instead of the rollback")
	}
	assert.Contains(t, out.Results.Paths(types.ResultSaved), "/forum/Sources/Test.php")
	testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
	testutil.AssertNotExists(t, e.FS, "/forum/Sources/Test.php")
	testutil.AssertNotExists(t, e.FS, "/forum/test_cache")
	assert.False(t, e.State.Installed("author:test"))
}

func TestUninstall_PackageGone(t *testing.T) {
	e := newEnv(t, nil)
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock, uninstallBlock)))

	_, err := e.in.Install(context.Background(), pkg)
	require.NoError(t, err)
	require.NoError(t, e.Mem.Remove("/pkgs/test.tar.gz"))

	out, err := e.in.Uninstall(context.Background(), "author:test")
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)
	assert.Equal(t, "author:test", out.Package.ID)
	testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
	testutil.AssertNotExists(t, e.FS, "/forum/Sources/Test.php")
}

func TestUninstall_NotInstalled(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.in.Uninstall(context.Background(), "author:missing")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotInstalled))
}

func TestInstall_DryRunWritesNothing(t *testing.T) {
	live := newEnv(t, nil)
	dry := newEnv(t, func(c *install.Context) { c.DryRun = true })
	data := testPackage(t, packageInfo("1.0", installBlock))

	want, err := live.in.Install(context.Background(), live.publish(t, "test.tar.gz", data))
	require.NoError(t, err)

	got, err := dry.in.Install(context.Background(), dry.publish(t, "test.tar.gz", data))
	require.NoError(t, err)

	assert.True(t, got.DryRun)
	assert.False(t, got.Failed)
	assert.Nil(t, got.Commit)
	assert.Equal(t, want.Results, got.Results, "dry run reports the same results")
	assert.Equal(t, loadPHP, dry.read(t, "/forum/Sources/Load.php"))
	assert.False(t, dry.exists("/forum/Sources/Test.php"))
	assert.False(t, dry.State.Installed("author:test"))
}

func TestInstall_Refusals(t *testing.T) {
	tests := []struct {
		name string
		host string
		info string
		code errors.ErrorCode
	}{
		{
			name: "no block for host version",
			host: "1.1.5",
			info: packageInfo("1.0", installBlock),
			code: errors.ErrManifestNoMatch,
		},
		{
			name: "missing manifest fields",
			host: "2.0.4",
			info: "<package-info><id>author:test</id></package-info>",
			code: errors.ErrManifestInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, func(c *install.Context) { c.HostVersion = tt.host })
			pkg := e.publish(t, "test.tar.gz", testPackage(t, tt.info))

			_, err := e.in.Install(context.Background(), pkg)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
			testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
		})
	}
}

func TestInstall_AlreadyInstalled(t *testing.T) {
	e := newEnv(t, nil)
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock)))

	_, err := e.in.Install(context.Background(), pkg)
	require.NoError(t, err)

	_, err = e.in.Install(context.Background(), pkg)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyInstalled))
}

func TestInstall_Upgrade(t *testing.T) {
	e := newEnv(t, nil)
	v1 := e.publish(t, "v1.tar.gz", testPackage(t, packageInfo("1.0", installBlock)))
	_, err := e.in.Install(context.Background(), v1)
	require.NoError(t, err)

	noUpgrade := e.publish(t, "v2.tar.gz", testPackage(t, packageInfo("1.1", installBlock)))
	_, err = e.in.Install(context.Background(), noUpgrade)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNoUpgrade))

	upgrade := `<upgrade from="1.0">
		<create-file name="upgraded.txt" destination="$boarddir/test_cache" />
	</upgrade>`
	v2 := e.publish(t, "v2.tar.gz", testPackage(t, packageInfo("1.1", installBlock, upgrade)))
	out, err := e.in.Install(context.Background(), v2)
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)
	assert.Equal(t, manifest.PhaseUpgrade, out.Phase)
	assert.True(t, e.exists("/forum/test_cache/upgraded.txt"))

	rec, err := e.State.Get("author:test")
	require.NoError(t, err)
	assert.Equal(t, "1.1", rec.Version)
	assert.Len(t, rec.Rollback, 5, "upgrade steps are appended to the install steps")
	assert.Len(t, rec.Hooks, 1)

	require.NoError(t, e.Mem.Remove("/pkgs/v2.tar.gz"))
	_, err = e.in.Uninstall(context.Background(), "author:test")
	require.NoError(t, err)
	testutil.AssertNotExists(t, e.FS, "/forum/test_cache")
	testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
}

func TestInstall_FailedActionCommitsNothing(t *testing.T) {
	tests := []struct {
		name  string
		block string
	}{
		{
			name: "missing requirement",
			block: `<install>
				<modification format="boardmod">test.mod</modification>
				<requires id="author:base" version="1.0" />
			</install>`,
		},
		{
			name: "error action",
			block: `<install>
				<modification format="boardmod">test.mod</modification>
				<error>Not for this forum</error>
			</install>`,
		},
		{
			name: "missing package file",
			block: `<install>
				<modification format="boardmod">test.mod</modification>
				<require-file name="Sources/Nope.php" destination="$sourcedir" />
			</install>`,
		},
		{
			name: "script outside the forum",
			block: `<install>
				<modification type="inline"><![CDATA[<modification><file name="/etc/passwd"><operation><search position="end" /><add>x</add></operation></file></modification>]]></modification>
			</install>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", tt.block)))

			out, err := e.in.Install(context.Background(), pkg)
			require.NoError(t, err)
			assert.True(t, out.Failed)
			assert.Nil(t, out.Commit)
			testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
			assert.False(t, e.State.Installed("author:test"))
		})
	}
}

func TestInstall_RequiresInstalledPackage(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.State.Put(&state.Record{ID: "author:base", Name: "Base", Version: "1.2"}))

	block := `<install>
		<requires id="author:base" version="1.0 - 1.9" />
		<create-dir name="test_cache" destination="$boarddir" />
	</install>`
	out, err := e.in.Install(context.Background(), e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", block))))
	require.NoError(t, err)
	assert.False(t, out.Failed, "%+v", out.Results)
	testutil.AssertDirExists(t, e.FS, "/forum/test_cache")
}

func TestInstall_ZipSlipStaysInForum(t *testing.T) {
	e := newEnv(t, nil)
	data := testutil.BuildZip(t, []testutil.ArchiveFile{
		{Name: "package-info.xml", Body: packageInfo("1.0", `<install><require-dir name="files" destination="$boarddir" /></install>`)},
		{Name: "files/../../../etc/passwd", Body: "root::0:0"},
		{Name: "files/readme.txt", Body: "hi"},
	})

	out, err := e.in.Install(context.Background(), e.publish(t, "slip.zip", data))
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)

	testutil.AssertNotExists(t, e.FS, "/etc/passwd")
	assert.Equal(t, "root::0:0", e.read(t, "/forum/files/etc/passwd"))
	assert.Equal(t, "hi", e.read(t, "/forum/files/readme.txt"))
}

func TestInstall_ReadOnlyFileIsChmodded(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.Mem.Chmod("/forum/Sources/Load.php", 0444))
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock)))

	out, err := e.in.Install(context.Background(), pkg)
	require.NoError(t, err)
	require.False(t, out.Failed, "%+v", out.Results)

	assert.Contains(t, out.Results.Paths(types.ResultChmodNeeded), "/forum/Sources/Load.php")
	require.NotNil(t, out.Commit)
	assert.Contains(t, out.Commit.Chmodded, "/forum/Sources/Load.php")
	testutil.AssertFileContains(t, e.FS, "/forum/Sources/Load.php", "echo 1;")
}

func TestInstall_Cancelled(t *testing.T) {
	e := newEnv(t, nil)
	pkg := e.publish(t, "test.tar.gz", testPackage(t, packageInfo("1.0", installBlock)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.in.Install(ctx, pkg)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInstallFailed))
	testutil.AssertFileContent(t, e.FS, "/forum/Sources/Load.php", loadPHP)
}
