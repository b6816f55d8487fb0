package archive

import (
	"bytes"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/modman/pkg/errors"
)

const tarBlockSize = 512

// TAR header field offsets
const (
	tarNameEnd     = 100
	tarModeOff     = 100
	tarUIDOff      = 108
	tarGIDOff      = 116
	tarSizeOff     = 124
	tarMtimeOff    = 136
	tarChksumOff   = 148
	tarChksumEnd   = 156
	tarTypeOff     = 156
	tarMagicOff    = 257
	tarPrefixOff   = 345
	tarPrefixEnd   = 500
	tarTypeDir     = '5'
	tarTypeLongNam = 'L'
)

// tarHeader holds the decoded numeric and text fields of one header block
type tarHeader struct {
	name     string
	mode     int64
	uid      int64
	gid      int64
	size     int64
	mtime    int64
	checksum int64
	typeflag byte
}

// visitFunc receives each entry; returning stop=true ends the walk early
type visitFunc func(Entry) (stop bool, err error)

// skipFunc records entries a walker could not decode
type skipFunc func(path, reason string)

// walkTar walks an uncompressed TAR stream
func walkTar(payload []byte, visit visitFunc, skip skipFunc) error {
	var longName string
	var paxPath string

	for off := 0; off+tarBlockSize <= len(payload); {
		block := payload[off : off+tarBlockSize]
		off += tarBlockSize

		// zero-filename blocks are padding or the end-of-archive marker
		if block[0] == 0 {
			continue
		}

		hdr, err := parseTarHeader(block)
		if err != nil {
			return err
		}

		if hdr.size < 0 || hdr.size > int64(len(payload)-off) {
			return errors.Newf(errors.ErrCorruptArchive, "tar entry %q overruns archive", hdr.name)
		}
		end := off + int(hdr.size)
		body := payload[off:end]
		off += int((hdr.size + tarBlockSize - 1) / tarBlockSize * tarBlockSize)

		name := hdr.name
		if longName != "" {
			name, longName = longName, ""
		}
		if paxPath != "" {
			name, paxPath = paxPath, ""
		}

		switch hdr.typeflag {
		case tarTypeLongNam:
			longName = cString(body)
			continue
		case 'x':
			paxPath = paxRecord(body, "path")
			continue
		case 'g':
			continue
		case '0', 0, '7':
		case tarTypeDir:
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
		default:
			skip(name, "unsupported tar entry type "+strconv.QuoteRune(rune(hdr.typeflag)))
			continue
		}

		entry := Entry{
			Path:     name,
			IsDir:    strings.HasSuffix(name, "/"),
			ModTime:  time.Unix(hdr.mtime, 0).UTC(),
			Mode:     fs.FileMode(hdr.mode).Perm(),
			Size:     hdr.size,
			Checksum: uint32(hdr.checksum),
		}
		if !entry.IsDir {
			entry.Data = body
		}

		stop, err := visit(entry)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// parseTarHeader decodes one 512-byte header block and verifies its checksum
func parseTarHeader(block []byte) (tarHeader, error) {
	var h tarHeader
	var err error

	h.name = cString(block[:tarNameEnd])
	if string(block[tarMagicOff:tarMagicOff+6]) == "ustar\x00" {
		if prefix := cString(block[tarPrefixOff:tarPrefixEnd]); prefix != "" {
			h.name = prefix + "/" + h.name
		}
	}

	fields := []struct {
		dst  *int64
		from int
		to   int
	}{
		{&h.mode, tarModeOff, tarUIDOff},
		{&h.uid, tarUIDOff, tarGIDOff},
		{&h.gid, tarGIDOff, tarSizeOff},
		{&h.size, tarSizeOff, tarMtimeOff},
		{&h.mtime, tarMtimeOff, tarChksumOff},
		{&h.checksum, tarChksumOff, tarChksumEnd},
	}
	for _, f := range fields {
		if *f.dst, err = parseNumeric(block[f.from:f.to]); err != nil {
			return h, errors.Wrapf(err, errors.ErrCorruptArchive, "tar header for %q", h.name)
		}
	}
	h.typeflag = block[tarTypeOff]

	if sum := tarChecksum(block); sum != h.checksum {
		return h, errors.Newf(errors.ErrCorruptArchive, "tar header checksum mismatch for %q: stored %d, computed %d", h.name, h.checksum, sum)
	}
	return h, nil
}

// tarChecksum sums all header bytes with the checksum field read as spaces
func tarChecksum(block []byte) int64 {
	var sum int64
	for i, b := range block {
		if i >= tarChksumOff && i < tarChksumEnd {
			sum += ' '
			continue
		}
		sum += int64(b)
	}
	return sum
}

// parseNumeric reads an octal field, or a GNU base-256 field when the
// high bit of the first byte is set.
func parseNumeric(field []byte) (int64, error) {
	if len(field) > 0 && field[0]&0x80 != 0 {
		var n int64
		for i, b := range field {
			if i == 0 {
				b &= 0x7f
			}
			if n > math.MaxInt64>>8 {
				return 0, strconv.ErrRange
			}
			n = n<<8 | int64(b)
		}
		return n, nil
	}

	s := strings.Trim(string(field), " \x00")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 8, 64)
}

// cString returns the bytes up to the first NUL
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// paxRecord extracts one key from a pax extended header ("len key=value\n")
func paxRecord(body []byte, key string) string {
	for _, line := range strings.Split(string(body), "\n") {
		_, kv, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}
