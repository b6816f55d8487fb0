package archive

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/arthur-debert/modman/pkg/errors"
	"github.com/klauspost/compress/flate"
)

// gzip header flags (RFC 1952)
const (
	gzipFlagHCRC    = 1 << 1
	gzipFlagExtra   = 1 << 2
	gzipFlagName    = 1 << 3
	gzipFlagComment = 1 << 4

	gzipHeaderLen  = 10
	gzipTrailerLen = 8
	methodDeflate  = 8
)

// gunzip inflates a single gzip member and verifies its CRC32 and size
// trailer. The stored CRC is accepted either as the standard IEEE CRC32 or
// as the legacy un-finalised register value some old packers wrote.
func gunzip(data []byte) ([]byte, error) {
	if len(data) < gzipHeaderLen+gzipTrailerLen {
		return nil, errors.New(errors.ErrCorruptArchive, "gzip data too short")
	}
	if data[0] != 0x1f || data[1] != 0x8b {
		return nil, errors.New(errors.ErrUnsupportedFormat, "missing gzip magic")
	}
	if data[2] != methodDeflate {
		return nil, errors.Newf(errors.ErrUnsupportedFormat, "gzip compression method %d", data[2])
	}

	flags := data[3]
	end := len(data) - gzipTrailerLen
	off := gzipHeaderLen

	if flags&gzipFlagExtra != 0 {
		if off+2 > end {
			return nil, errors.New(errors.ErrCorruptArchive, "truncated gzip extra field")
		}
		off += 2 + int(binary.LittleEndian.Uint16(data[off:]))
	}
	if flags&gzipFlagName != 0 {
		off = skipCString(data, off, end)
	}
	if flags&gzipFlagComment != 0 {
		off = skipCString(data, off, end)
	}
	if flags&gzipFlagHCRC != 0 {
		off += 2
	}
	if off > end {
		return nil, errors.New(errors.ErrCorruptArchive, "truncated gzip header")
	}

	fr := flate.NewReader(bytes.NewReader(data[off:end]))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCorruptArchive, "inflate gzip payload")
	}

	storedCRC := binary.LittleEndian.Uint32(data[end:])
	storedSize := binary.LittleEndian.Uint32(data[end+4:])

	if !crcMatches(storedCRC, out) {
		return nil, errors.Newf(errors.ErrCorruptArchive, "gzip crc mismatch: stored %08x", storedCRC).
			WithDetail("computed", crc32.ChecksumIEEE(out))
	}
	if storedSize != uint32(len(out)) {
		return nil, errors.Newf(errors.ErrCorruptArchive, "gzip size mismatch: stored %d, inflated %d", storedSize, len(out))
	}
	return out, nil
}

// crcMatches accepts the IEEE CRC32 of data or its legacy form without the
// final xor.
func crcMatches(stored uint32, data []byte) bool {
	sum := crc32.ChecksumIEEE(data)
	return stored == sum || stored == ^sum
}

// skipCString returns the offset just past the NUL terminating the string at off
func skipCString(data []byte, off, end int) int {
	for off < end && data[off] != 0 {
		off++
	}
	return off + 1
}
