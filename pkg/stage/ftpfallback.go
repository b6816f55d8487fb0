package stage

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/arthur-debert/modman/pkg/logging"
	"github.com/arthur-debert/modman/pkg/types"
	"github.com/rs/zerolog"
)

// FTPClient is the part of an FTP session the fallback needs.
// *ftp.Session satisfies it.
type FTPClient interface {
	MakeDirectory(path string) error
	CreateEmptyFile(path string) error
	Chmod(path string, mode fs.FileMode) error
	Delete(path string) error
}

// FTPFallback makes local paths writable by chmod-ing them over FTP. The
// forum root on disk maps onto remoteRoot on the server.
type FTPFallback struct {
	client     FTPClient
	fs         types.FS
	localRoot  string
	remoteRoot string
	logger     zerolog.Logger
}

var _ types.PermissionFallback = (*FTPFallback)(nil)

// NewFTPFallback creates a fallback mapping localRoot to remoteRoot
func NewFTPFallback(client FTPClient, fsys types.FS, localRoot, remoteRoot string) *FTPFallback {
	return &FTPFallback{
		client:     client,
		fs:         fsys,
		localRoot:  filepath.Clean(localRoot),
		remoteRoot: path.Clean("/" + strings.TrimPrefix(filepath.ToSlash(remoteRoot), "/")),
		logger:     logging.GetLogger("stage.ftp"),
	}
}

// Remote maps a local path below the forum root to its server path
func (f *FTPFallback) Remote(local string) (string, error) {
	rel, err := filepath.Rel(f.localRoot, filepath.Clean(local))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrPathOutsideRoot, "%s is outside %s", local, f.localRoot)
	}
	if rel == "." {
		return f.remoteRoot, nil
	}
	return path.Join(f.remoteRoot, filepath.ToSlash(rel)), nil
}

// MakeWritable chmods a directory to 0777 or a file to 0666, creating
// the directory or an empty file first when missing.
func (f *FTPFallback) MakeWritable(local string, isDir bool) error {
	remote, err := f.Remote(local)
	if err != nil {
		return err
	}
	_, statErr := f.fs.Stat(local)
	missing := statErr != nil

	mode := fs.FileMode(0666)
	if isDir {
		mode = 0777
		if missing {
			if err := f.client.MakeDirectory(remote); err != nil {
				return errors.Wrapf(err, errors.ErrPermission, "create %s over FTP", remote)
			}
		}
	} else if missing {
		if err := f.client.CreateEmptyFile(remote); err != nil {
			return errors.Wrapf(err, errors.ErrPermission, "create %s over FTP", remote)
		}
	}

	if err := f.client.Chmod(remote, mode); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "chmod %s over FTP", remote)
	}
	f.logger.Info().Str("path", remote).Str("mode", mode.String()).Msg("Made writable over FTP")
	return nil
}

// Remove deletes a file or an empty directory over FTP
func (f *FTPFallback) Remove(local string, _ bool) error {
	remote, err := f.Remote(local)
	if err != nil {
		return err
	}
	if err := f.client.Delete(remote); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "delete %s over FTP", remote)
	}
	return nil
}
