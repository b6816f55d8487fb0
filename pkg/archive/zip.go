package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/klauspost/compress/flate"
)

var (
	sigEOCD       = []byte{0x50, 0x4b, 0x05, 0x06}
	sigCentral    = []byte{0x50, 0x4b, 0x01, 0x02}
	sigLocal      = []byte{0x50, 0x4b, 0x03, 0x04}
	sigDescriptor = []byte{0x50, 0x4b, 0x07, 0x08}
)

const (
	eocdLen         = 22
	centralLen      = 46
	localLen        = 30
	zipFlagStreamed = 1 << 3
	zipMethodStore  = 0
	zipMethodFlate  = 8
)

// zipRecord is the subset of a central directory record we need
type zipRecord struct {
	name         string
	flags        uint16
	method       uint16
	modTime      time.Time
	crc          uint32
	csize        uint32
	usize        uint32
	externalAttr uint32
	localOffset  uint32
}

// walkZip walks the central directory of a ZIP archive and decodes every
// entry through its local header.
func walkZip(data []byte, visit visitFunc, skip skipFunc) error {
	eocd := bytes.LastIndex(data, sigEOCD)
	if eocd < 0 || eocd+eocdLen > len(data) {
		return errors.New(errors.ErrCorruptArchive, "zip end of central directory not found")
	}

	count := int(binary.LittleEndian.Uint16(data[eocd+10:]))
	cdOffset := int(binary.LittleEndian.Uint32(data[eocd+16:]))

	p := cdOffset
	for i := 0; i < count; i++ {
		rec, next, err := readCentralRecord(data, p)
		if err != nil {
			return err
		}
		p = next

		if rec.method != zipMethodStore && rec.method != zipMethodFlate {
			skip(rec.name, fmt.Sprintf("unsupported compression method %d", rec.method))
			continue
		}

		content, err := readLocalEntry(data, rec)
		if err != nil {
			return err
		}

		entry := Entry{
			Path:     rec.name,
			IsDir:    strings.HasSuffix(rec.name, "/"),
			ModTime:  rec.modTime,
			Mode:     zipMode(rec),
			Size:     int64(rec.usize),
			Checksum: rec.crc,
		}
		if !entry.IsDir {
			entry.Data = content
		}

		stop, err := visit(entry)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// readCentralRecord decodes the central directory record at p
func readCentralRecord(data []byte, p int) (zipRecord, int, error) {
	var rec zipRecord
	if p < 0 || p+centralLen > len(data) || !bytes.Equal(data[p:p+4], sigCentral) {
		return rec, 0, errors.Newf(errors.ErrCorruptArchive, "bad zip central directory record at %d", p)
	}

	le := binary.LittleEndian
	rec.flags = le.Uint16(data[p+8:])
	rec.method = le.Uint16(data[p+10:])
	rec.modTime = dosTime(le.Uint16(data[p+14:]), le.Uint16(data[p+12:]))
	rec.crc = le.Uint32(data[p+16:])
	rec.csize = le.Uint32(data[p+20:])
	rec.usize = le.Uint32(data[p+24:])
	nameLen := int(le.Uint16(data[p+28:]))
	extraLen := int(le.Uint16(data[p+30:]))
	commentLen := int(le.Uint16(data[p+32:]))
	rec.externalAttr = le.Uint32(data[p+38:])
	rec.localOffset = le.Uint32(data[p+42:])

	next := p + centralLen + nameLen + extraLen + commentLen
	if next > len(data) {
		return rec, 0, errors.New(errors.ErrCorruptArchive, "zip central directory record overruns archive")
	}
	rec.name = string(data[p+centralLen : p+centralLen+nameLen])
	return rec, next, nil
}

// readLocalEntry locates the local header of rec, decompresses the entry
// and verifies its CRC32. For streamed entries (flag bit 3) the CRC and
// sizes come from the trailing data descriptor.
func readLocalEntry(data []byte, rec zipRecord) ([]byte, error) {
	le := binary.LittleEndian
	lh := int(rec.localOffset)
	if lh+localLen > len(data) || !bytes.Equal(data[lh:lh+4], sigLocal) {
		return nil, errors.Newf(errors.ErrCorruptArchive, "bad zip local header for %q", rec.name)
	}

	flags := le.Uint16(data[lh+6:])
	crc, csize, usize := le.Uint32(data[lh+14:]), le.Uint32(data[lh+18:]), le.Uint32(data[lh+22:])
	start := lh + localLen + int(le.Uint16(data[lh+26:])) + int(le.Uint16(data[lh+28:]))

	if flags&zipFlagStreamed != 0 || rec.flags&zipFlagStreamed != 0 {
		crc, csize, usize = rec.crc, rec.csize, rec.usize
		if dcrc, dcsize, dusize, ok := readDescriptor(data, start+int(csize)); ok {
			crc, csize, usize = dcrc, dcsize, dusize
		}
	}

	end := start + int(csize)
	if start > len(data) || end > len(data) {
		return nil, errors.Newf(errors.ErrCorruptArchive, "zip entry %q overruns archive", rec.name)
	}
	raw := data[start:end]

	var content []byte
	switch rec.method {
	case zipMethodStore:
		content = raw
	case zipMethodFlate:
		fr := flate.NewReader(bytes.NewReader(raw))
		var err error
		content, err = io.ReadAll(fr)
		fr.Close()
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCorruptArchive, "inflate %q", rec.name)
		}
	}

	if uint32(len(content)) != usize {
		return nil, errors.Newf(errors.ErrCorruptArchive, "zip size mismatch for %q: expected %d, got %d", rec.name, usize, len(content))
	}
	if sum := crc32.ChecksumIEEE(content); sum != crc {
		return nil, errors.Newf(errors.ErrCorruptArchive, "zip crc mismatch for %q: stored %08x, computed %08x", rec.name, crc, sum)
	}
	return content, nil
}

// readDescriptor reads the data descriptor at off, with or without its
// optional signature.
func readDescriptor(data []byte, off int) (crc, csize, usize uint32, ok bool) {
	le := binary.LittleEndian
	if off+4 <= len(data) && bytes.Equal(data[off:off+4], sigDescriptor) {
		off += 4
	}
	if off+12 > len(data) {
		return 0, 0, 0, false
	}
	return le.Uint32(data[off:]), le.Uint32(data[off+4:]), le.Uint32(data[off+8:]), true
}

// dosTime converts MS-DOS date and time fields
func dosTime(date, tm uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xf),
		int(date&0x1f),
		int(tm>>11),
		int(tm>>5&0x3f),
		int(tm&0x1f)*2,
		0,
		time.UTC,
	)
}

// zipMode returns the unix permission bits when the creator stored them
func zipMode(rec zipRecord) fs.FileMode {
	if mode := fs.FileMode(rec.externalAttr >> 16).Perm(); mode != 0 {
		return mode
	}
	if strings.HasSuffix(rec.name, "/") {
		return 0755
	}
	return 0644
}
