package remotezip

import "strings"

const (
	directoryHeaderLen = 46 // fixed part of a Central Directory file header

	flagEncrypted = 0x1
)

// Compression methods understood by FetchEntry.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
)

// EntryKind tells files and folders apart.
type EntryKind uint8

const (
	FileEntry EntryKind = iota
	FolderEntry
)

func (k EntryKind) String() string {
	if k == FolderEntry {
		return "folder"
	}
	return "file"
}

// Entry is one Central Directory record.
type Entry struct {
	// Name is the full path as stored in the archive. Folders end in "/".
	Name              string
	Flags             uint16
	Method            uint16
	Modified          DOSTime
	CRC32             uint32 // not verified
	CompressedSize    uint32
	UncompressedSize  uint32
	Encrypted         bool
	LocalHeaderOffset uint32
	Comment           string
}

// Kind returns FolderEntry if the name ends with a slash.
func (e *Entry) Kind() EntryKind {
	if strings.HasSuffix(e.Name, "/") {
		return FolderEntry
	}
	return FileEntry
}

// IsDir reports whether e is a folder.
func (e *Entry) IsDir() bool {
	return e.Kind() == FolderEntry
}

// parseDirectory decodes the Central Directory block b. It stops at the
// first position that does not hold a complete file header, so trailing
// bytes are ignored.
func parseDirectory(b []byte) []Entry {
	var entries []Entry
	for pos := 0; pos < len(b); {
		e, n := parseDirectoryHeader(b[pos:])
		if n == 0 {
			break
		}
		entries = append(entries, e)
		pos += n
	}
	return entries
}

// parseDirectoryHeader decodes the file header at the start of b and
// returns it with the number of bytes it occupies, or n == 0 if b does
// not start with a complete header.
func parseDirectoryHeader(b []byte) (e Entry, n int) {
	if len(b) < 4 || b[0] != 'P' || b[1] != 'K' || b[2] != 0x01 || b[3] != 0x02 {
		return Entry{}, 0
	}
	if len(b) < directoryHeaderLen {
		return Entry{}, 0
	}
	buf := readBuf(b[4:])
	buf.skip(4) // version made by, version needed
	e.Flags = buf.uint16()
	e.Method = buf.uint16()
	dosTime := buf.uint16()
	dosDate := buf.uint16()
	e.CRC32 = buf.uint32()
	e.CompressedSize = buf.uint32()
	e.UncompressedSize = buf.uint32()
	nameLen := int(buf.uint16())
	extraLen := int(buf.uint16())
	commentLen := int(buf.uint16())
	buf.skip(8) // disk number, internal and external attributes
	e.LocalHeaderOffset = buf.uint32()

	nameEnd := directoryHeaderLen + nameLen
	if nameEnd > len(b) {
		return Entry{}, 0
	}
	e.Name = string(b[directoryHeaderLen:nameEnd])
	e.Encrypted = e.Flags&flagEncrypted != 0
	e.Modified = decodeDOSTime(dosDate, dosTime)

	n = nameEnd + extraLen + commentLen
	if commentStart := nameEnd + extraLen; commentLen > 0 && commentStart < len(b) {
		end := n
		if end > len(b) {
			end = len(b)
		}
		e.Comment = string(b[commentStart:end])
	}
	return e, n
}
