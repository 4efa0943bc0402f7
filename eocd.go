package remotezip

import "encoding/binary"

const (
	directoryEndLen = 22 // fixed part of the EOCD record

	// directoryEndWindow is how much of the archive tail is fetched to
	// find the EOCD record: the record plus a maximum length comment.
	directoryEndWindow = 65558
)

// directoryEnd is the decoded End-Of-Central-Directory record.
type directoryEnd struct {
	records   uint16 // total Central Directory records
	dirSize   uint32
	dirOffset uint32
	comment   string
}

// tailWindow returns the inclusive byte range holding the last
// min(65558, size) bytes of an archive of the given size.
func tailWindow(size uint64) (first, last uint64) {
	window := uint64(directoryEndWindow)
	if size < window {
		window = size
	}
	return size - window, size - 1
}

// findDirectoryEnd scans b backwards for the EOCD signature and returns
// its offset within b. The comment that follows the record is author
// controlled, so the match closest to the end wins.
func findDirectoryEnd(b []byte) (int, error) {
	for i := len(b) - directoryEndLen; i >= 0; i-- {
		if b[i] == 'P' && b[i+1] == 'K' && b[i+2] == 0x05 && b[i+3] == 0x06 {
			return i, nil
		}
	}
	return -1, newError(KindFormat, "EOCD not found")
}

// parseDirectoryEnd locates and decodes the EOCD record within the
// archive tail b.
func parseDirectoryEnd(b []byte) (*directoryEnd, error) {
	off, err := findDirectoryEnd(b)
	if err != nil {
		return nil, err
	}
	buf := readBuf(b[off+4:])
	buf.skip(6) // disk numbers, records on this disk
	d := &directoryEnd{
		records:   buf.uint16(),
		dirSize:   buf.uint32(),
		dirOffset: buf.uint32(),
	}
	commentLen := int(buf.uint16())
	if commentLen > len(buf) {
		commentLen = len(buf)
	}
	d.comment = string(buf[:commentLen])
	return d, nil
}

// readBuf decodes little-endian fields from the front of a byte slice.
type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) skip(n int) {
	*b = (*b)[n:]
}
