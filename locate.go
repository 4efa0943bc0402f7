package remotezip

import (
	"encoding/binary"
	"strings"
)

const fileHeaderLen = 30 // fixed part of a Local File Header

// findEntry returns the first entry, in Central Directory order, whose
// name equals path, ends with "/"+path, or equals path once backslashes
// are turned into slashes. With overlapping suffixes an earlier entry
// wins over a later exact match. An empty path matches nothing.
func findEntry(entries []Entry, path string) (*Entry, bool) {
	if path == "" {
		return nil, false
	}
	normPath := strings.ReplaceAll(path, `\`, "/")
	for i := range entries {
		name := entries[i].Name
		if name == path ||
			strings.HasSuffix(name, "/"+path) ||
			strings.ReplaceAll(name, `\`, "/") == normPath {
			return &entries[i], true
		}
	}
	return nil, false
}

// payloadRange is the inclusive byte range of an entry's compressed data.
type payloadRange struct {
	first, last uint64
}

func (pr payloadRange) size() uint64 {
	return pr.last - pr.first + 1
}

// localHeaderRange is the inclusive byte range of the fixed part of the
// Local File Header at offset.
func localHeaderRange(offset uint32) (first, last uint64) {
	return uint64(offset), uint64(offset) + fileHeaderLen - 1
}

// resolvePayload computes where e's compressed data lives from the fixed
// part of its Local File Header. The local name and extra lengths may
// differ from the Central Directory ones, so only they are used. The
// header signature is not checked. ok is false for empty payloads.
func resolvePayload(e *Entry, header []byte) (pr payloadRange, ok bool, err error) {
	if len(header) < fileHeaderLen {
		return payloadRange{}, false, newError(KindTruncatedRange,
			"local file header of %s is truncated", e.Name)
	}
	nameLen := uint64(binary.LittleEndian.Uint16(header[26:28]))
	extraLen := uint64(binary.LittleEndian.Uint16(header[28:30]))

	first := uint64(e.LocalHeaderOffset) + fileHeaderLen + nameLen + extraLen
	if e.CompressedSize == 0 {
		return payloadRange{first: first, last: first}, false, nil
	}
	return payloadRange{first: first, last: first + uint64(e.CompressedSize) - 1}, true, nil
}
