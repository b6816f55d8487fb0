// pkg/stage/stage_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: MemoryFS
// PURPOSE: Test staged reads, two-phase commit, chmod ladder, FTP fallback and backups

package stage_test

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/stage"
	"github.com/arthur-debert/modman/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedFS refuses chmod on selected paths, like files owned by the web server
type lockedFS struct {
	*testutil.MemoryFS
	locked map[string]bool
}

func (l *lockedFS) Chmod(name string, mode fs.FileMode) error {
	if l.locked[name] {
		return &fs.PathError{Op: "chmod", Path: name, Err: fs.ErrPermission}
	}
	return l.MemoryFS.Chmod(name, mode)
}

// fakeFTP applies commands straight to the backing MemoryFS, mapping the
// server root onto the forum root.
type fakeFTP struct {
	mem        *testutil.MemoryFS
	localRoot  string
	remoteRoot string
	commands   []string
	fail       bool
}

func (f *fakeFTP) local(remote string) string {
	return path.Join(f.localRoot, strings.TrimPrefix(remote, f.remoteRoot))
}

func (f *fakeFTP) MakeDirectory(p string) error {
	f.commands = append(f.commands, "mkd "+p)
	return f.mem.MkdirAll(f.local(p), 0755)
}

func (f *fakeFTP) CreateEmptyFile(p string) error {
	f.commands = append(f.commands, "stor "+p)
	return f.mem.WriteFile(f.local(p), nil, 0644)
}

func (f *fakeFTP) Chmod(p string, mode fs.FileMode) error {
	f.commands = append(f.commands, fmt.Sprintf("chmod %o %s", mode, p))
	if f.fail {
		return fmt.Errorf("550 permission denied")
	}
	return f.mem.Chmod(f.local(p), mode)
}

func (f *fakeFTP) Delete(p string) error {
	f.commands = append(f.commands, "dele "+p)
	return f.mem.Remove(f.local(p))
}

func seed(t *testing.T, files map[string]string, modes map[string]fs.FileMode) *testutil.MemoryFS {
	t.Helper()
	mem := testutil.NewMemoryFS()
	for p, content := range files {
		require.NoError(t, mem.MkdirAll(path.Dir(p), 0755))
		require.NoError(t, mem.WriteFile(p, []byte(content), 0644))
	}
	for p, mode := range modes {
		require.NoError(t, mem.Chmod(p, mode))
	}
	return mem
}

func TestStage_OverlayReads(t *testing.T) {
	mem := seed(t, map[string]string{
		"/forum/index.php":        "original",
		"/forum/Sources/Load.php": "load",
	}, nil)
	st := stage.New(mem)

	require.NoError(t, st.Write("/forum/index.php", []byte("staged")))
	require.NoError(t, st.Mkdir("/forum/Themes/extra"))

	data, err := st.Read("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, "staged", string(data))

	onDisk, err := mem.ReadFile("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, "original", string(onDisk), "nothing reaches storage before commit")

	assert.True(t, st.IsDir("/forum/Themes/extra"))
	_, err = mem.Stat("/forum/Themes/extra")
	assert.Error(t, err)

	require.NoError(t, st.Remove("/forum/Sources"))
	assert.False(t, st.Exists("/forum/Sources/Load.php"))
	_, err = st.Read("/forum/Sources/Load.php")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.Equal(t, []string{
		"write /forum/index.php",
		"mkdir /forum/Themes/extra",
		"remove /forum/Sources",
	}, st.Pending())

	st.Discard()
	assert.Empty(t, st.Pending())
	assert.True(t, st.Exists("/forum/Sources/Load.php"))
}

func TestStage_WriteOverDirectory(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/Sources/Load.php": "x"}, nil)
	st := stage.New(mem)

	err := st.Write("/forum/Sources", []byte("x"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileWrite))

	err = st.Mkdir("/forum/Sources/Load.php")
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileWrite))
}

func TestStage_RenameSnapshot(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/pkg/a.php": "a"}, nil)
	st := stage.New(mem)

	require.NoError(t, st.Write("/forum/pkg/b.php", []byte("b")))
	require.NoError(t, st.Rename("/forum/pkg", "/forum/moved"))

	for name, want := range map[string]string{"a.php": "a", "b.php": "b"} {
		data, err := st.Read("/forum/moved/" + name)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
		assert.False(t, st.Exists("/forum/pkg/"+name))
	}

	report, err := st.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{"/forum/pkg -> /forum/moved"}, report.Moved)

	data, err := mem.ReadFile("/forum/moved/b.php")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	_, err = mem.Stat("/forum/pkg")
	assert.Error(t, err)
	assert.Empty(t, st.Pending(), "commit clears the journal")
}

func TestStage_CopyTree(t *testing.T) {
	mem := seed(t, map[string]string{
		"/tmp/pkg/Themes/default/x.css": "css",
		"/tmp/pkg/Sources/Mod.php":      "php",
	}, nil)
	require.NoError(t, mem.MkdirAll("/forum", 0755))
	st := stage.New(mem)

	require.NoError(t, st.Copy("/tmp/pkg", "/forum"))
	_, err := st.Commit()
	require.NoError(t, err)

	data, err := mem.ReadFile("/forum/Themes/default/x.css")
	require.NoError(t, err)
	assert.Equal(t, "css", string(data))
	data, err = mem.ReadFile("/forum/Sources/Mod.php")
	require.NoError(t, err)
	assert.Equal(t, "php", string(data))
}

func TestStage_CommitUnwritableWritesNothing(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/index.php": "original"},
		map[string]fs.FileMode{"/forum/index.php": 0444})
	fsys := &lockedFS{MemoryFS: mem, locked: map[string]bool{"/forum/index.php": true}}
	st := stage.New(fsys)

	require.NoError(t, st.Write("/forum/new.php", []byte("new")))
	require.NoError(t, st.Write("/forum/index.php", []byte("patched")))

	_, err := st.Commit()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPermission))

	var modErr *errors.ModError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, []string{"/forum/index.php"}, modErr.Details["paths"])

	_, err = mem.Stat("/forum/new.php")
	assert.Error(t, err, "no write may happen when any target is blocked")
	data, _ := mem.ReadFile("/forum/index.php")
	assert.Equal(t, "original", string(data))
	assert.Len(t, st.Pending(), 2, "a failed commit keeps the journal")
}

func TestStage_ChmodLadder(t *testing.T) {
	mem := seed(t, map[string]string{
		"/forum/index.php":     "original",
		"/forum/Sources/a.php": "a",
	}, map[string]fs.FileMode{
		"/forum/index.php": 0444,
		"/forum/Sources":   0555,
	})
	st := stage.New(mem)

	require.NoError(t, st.Write("/forum/index.php", []byte("patched")))
	require.NoError(t, st.Write("/forum/Sources/b.php", []byte("b")))

	report, err := st.Commit()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/forum/index.php", "/forum/Sources"}, report.Chmodded)
	assert.Empty(t, report.Fallback)

	data, err := mem.ReadFile("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, "patched", string(data))
	info, err := mem.Stat("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0644), info.Mode().Perm())
}

func TestStage_FTPFallback(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/index.php": "original"},
		map[string]fs.FileMode{"/forum/index.php": 0444})
	fsys := &lockedFS{MemoryFS: mem, locked: map[string]bool{"/forum/index.php": true}}
	client := &fakeFTP{mem: mem, localRoot: "/forum", remoteRoot: "/public_html"}
	fallback := stage.NewFTPFallback(client, fsys, "/forum", "public_html")

	st := stage.New(fsys, stage.WithFallback(fallback))
	require.NoError(t, st.Write("/forum/index.php", []byte("patched")))

	report, err := st.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{"/forum/index.php"}, report.Fallback)
	assert.Equal(t, []string{"chmod 666 /public_html/index.php"}, client.commands)

	data, err := mem.ReadFile("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, "patched", string(data))
}

func TestStage_FTPFallbackFailure(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/index.php": "original"},
		map[string]fs.FileMode{"/forum/index.php": 0444})
	fsys := &lockedFS{MemoryFS: mem, locked: map[string]bool{"/forum/index.php": true}}
	client := &fakeFTP{mem: mem, localRoot: "/forum", remoteRoot: "/public_html", fail: true}

	st := stage.New(fsys, stage.WithFallback(stage.NewFTPFallback(client, fsys, "/forum", "/public_html")))
	require.NoError(t, st.Write("/forum/index.php", []byte("patched")))

	_, err := st.Commit()
	assert.True(t, errors.IsErrorCode(err, errors.ErrPermission))
	data, _ := mem.ReadFile("/forum/index.php")
	assert.Equal(t, "original", string(data))
}

func TestStage_Backup(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/index.php": "original"}, nil)
	st := stage.New(mem, stage.WithBackup("~"))

	require.NoError(t, st.Write("/forum/index.php", []byte("first")))
	require.NoError(t, st.Write("/forum/index.php", []byte("second")))
	require.NoError(t, st.Write("/forum/fresh.php", []byte("fresh")))

	report, err := st.Commit()
	require.NoError(t, err)
	assert.Equal(t, []string{"/forum/index.php~"}, report.Backups)

	backup, err := mem.ReadFile("/forum/index.php~")
	require.NoError(t, err)
	assert.Equal(t, "original", string(backup))
	current, err := mem.ReadFile("/forum/index.php")
	require.NoError(t, err)
	assert.Equal(t, "second", string(current))
	_, err = mem.Stat("/forum/fresh.php~")
	assert.Error(t, err, "new files get no backup")
}

func TestFTPFallback_Remote(t *testing.T) {
	fallback := stage.NewFTPFallback(&fakeFTP{}, testutil.NewMemoryFS(), "/var/www/forum", "/public_html/forum")

	tests := []struct {
		name    string
		local   string
		want    string
		outside bool
	}{
		{name: "root", local: "/var/www/forum", want: "/public_html/forum"},
		{name: "nested", local: "/var/www/forum/Sources/Load.php", want: "/public_html/forum/Sources/Load.php"},
		{name: "unclean", local: "/var/www/forum/Themes/../index.php", want: "/public_html/forum/index.php"},
		{name: "sibling", local: "/var/www/other/index.php", outside: true},
		{name: "prefix only", local: "/var/www/forum2/index.php", outside: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fallback.Remote(tt.local)
			if tt.outside {
				assert.True(t, errors.IsErrorCode(err, errors.ErrPathOutsideRoot))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFTPFallback_MakeWritableCreatesMissing(t *testing.T) {
	mem := seed(t, map[string]string{"/forum/index.php": "x"}, nil)
	client := &fakeFTP{mem: mem, localRoot: "/forum", remoteRoot: "/www"}
	fallback := stage.NewFTPFallback(client, mem, "/forum", "/www")

	require.NoError(t, fallback.MakeWritable("/forum/Settings.php", false))
	require.NoError(t, fallback.MakeWritable("/forum/cache", true))
	require.NoError(t, fallback.Remove("/forum/index.php", false))

	assert.Equal(t, []string{
		"stor /www/Settings.php",
		"chmod 666 /www/Settings.php",
		"mkd /www/cache",
		"chmod 777 /www/cache",
		"dele /www/index.php",
	}, client.commands)
}
