package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ArchiveFile describes one member of a fixture archive
type ArchiveFile struct {
	Name    string
	Body    string
	Dir     bool
	ModTime time.Time

	// Method is the ZIP compression method (zip.Store, zip.Deflate or any
	// other id, which is written raw with that id in the header).
	Method uint16

	// Format selects the TAR header format; zero lets archive/tar choose.
	Format tar.Format
}

func (f ArchiveFile) modTime() time.Time {
	if f.ModTime.IsZero() {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return f.ModTime
}

// BuildTarGz builds a gzip-compressed tar archive in memory
func BuildTarGz(t testing.TB, files []ArchiveFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    0644,
			ModTime: f.modTime(),
			Format:  f.Format,
		}
		if f.Dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(f.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", f.Name, err)
		}
		if !f.Dir {
			if _, err := tw.Write([]byte(f.Body)); err != nil {
				t.Fatalf("tar body %s: %v", f.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// BuildZip builds a ZIP archive in memory. Entries use data descriptors
// (general purpose flag bit 3), as written by archive/zip.
func BuildZip(t testing.TB, files []ArchiveFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range files {
		if f.Method != zip.Store && f.Method != zip.Deflate {
			zw.RegisterCompressor(f.Method, func(out io.Writer) (io.WriteCloser, error) {
				return nopWriteCloser{out}, nil
			})
		}

		name := f.Name
		if f.Dir && name[len(name)-1] != '/' {
			name += "/"
		}
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   f.Method,
			Modified: f.modTime(),
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %s: %v", f.Name, err)
		}
		if !f.Dir {
			if _, err := w.Write([]byte(f.Body)); err != nil {
				t.Fatalf("zip body %s: %v", f.Name, err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
