// Package remotezip lists and extracts entries of ZIP archives on remote
// servers without downloading the whole archive.
//
// Only the byte ranges that are needed are fetched: the archive tail
// holding the End-Of-Central-Directory record, the Central Directory,
// and for a single entry its Local File Header and compressed data.
// HTTP Range Requests (see RFC 7233) are used for http and https URLs;
// other transports plug in through the RangeFetcher interface.
//
// Stored and deflated entries are supported. ZIP64, multi-disk archives
// and CRC32 verification are not.
package remotezip

import (
	"context"

	"go.uber.org/zap"
)

// Reader runs the listing and extraction pipelines. It keeps no state
// between calls and is safe for concurrent use.
type Reader struct {
	fetcher      RangeFetcher
	log          *zap.Logger
	maxEntrySize uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for per stage debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMaxEntrySize limits the uncompressed size of entries returned by
// FetchEntry. Larger entries fail with KindDecompression. 0 means no
// limit, the default.
func WithMaxEntrySize(n uint64) Option {
	return func(r *Reader) {
		r.maxEntrySize = n
	}
}

// New creates a Reader on top of f. If f is nil, an HTTPFetcher using
// http.DefaultClient is used.
func New(f RangeFetcher, opts ...Option) *Reader {
	if f == nil {
		f = NewHTTPFetcher(nil, nil)
	}
	r := &Reader{
		fetcher: f,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listing describes the content of an archive.
type Listing struct {
	Files            []Node `json:"files"`
	TotalArchiveSize uint64 `json:"totalSize"`
	// TotalFileCount counts Central Directory records, folders included.
	TotalFileCount uint32 `json:"totalFiles"`
	Comment        string `json:"comment,omitempty"`
}

// Payload is the uncompressed content of one entry.
type Payload struct {
	Name string
	Data []byte
	// OriginalSize is the uncompressed size recorded in the archive.
	OriginalSize uint64
}

// directory is the result of the shared first half of both pipelines.
type directory struct {
	size    uint64
	end     *directoryEnd
	entries []Entry
}

// ListArchive fetches the Central Directory of the archive at url and
// returns its content as a tree.
func (r *Reader) ListArchive(ctx context.Context, url string) (*Listing, error) {
	dir, err := r.readDirectory(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Listing{
		Files:            buildTree(dir.entries),
		TotalArchiveSize: dir.size,
		TotalFileCount:   uint32(len(dir.entries)),
		Comment:          dir.end.comment,
	}, nil
}

// Entries returns the flat Central Directory of the archive at url, in
// archive order.
func (r *Reader) Entries(ctx context.Context, url string) ([]Entry, error) {
	dir, err := r.readDirectory(ctx, url)
	if err != nil {
		return nil, err
	}
	return dir.entries, nil
}

// FetchEntry returns the uncompressed content of the entry at path in
// the archive at url. See findEntry for how path is matched.
func (r *Reader) FetchEntry(ctx context.Context, url, path string) (*Payload, error) {
	dir, err := r.readDirectory(ctx, url)
	if err != nil {
		return nil, err
	}

	e, ok := findEntry(dir.entries, path)
	if !ok {
		if ce := r.log.Check(zap.DebugLevel, "entry not found"); ce != nil {
			names := make([]string, len(dir.entries))
			for i := range dir.entries {
				names[i] = dir.entries[i].Name
			}
			ce.Write(zap.String("path", path), zap.Strings("available", names))
		}
		return nil, newError(KindNotFound, "file %s not found in archive", path)
	}
	if !supportedMethod(e.Method) {
		return nil, newError(KindUnsupportedCompression,
			"unsupported compression method %d for %s", e.Method, e.Name)
	}

	if limit := r.maxEntrySize; limit > 0 &&
		(uint64(e.UncompressedSize) > limit || (e.Method == Store && uint64(e.CompressedSize) > limit)) {
		return nil, newError(KindDecompression,
			"%s exceeds the entry size limit of %d bytes", e.Name, limit)
	}

	payload, err := r.readPayload(ctx, url, dir.size, e)
	if err != nil {
		return nil, err
	}
	data, err := decompress(e, payload, r.maxEntrySize)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	r.log.Debug("entry fetched",
		zap.String("name", e.Name),
		zap.Uint16("method", e.Method),
		zap.Int("compressed", len(payload)),
		zap.Int("uncompressed", len(data)))

	return &Payload{
		Name:         e.Name,
		Data:         data,
		OriginalSize: uint64(e.UncompressedSize),
	}, nil
}

// readDirectory resolves the archive size, locates the EOCD record and
// parses the Central Directory.
func (r *Reader) readDirectory(ctx context.Context, url string) (*directory, error) {
	size, err := r.fetcher.Size(ctx, url)
	if err != nil {
		return nil, err
	}
	r.log.Debug("archive size", zap.String("url", url), zap.Uint64("size", size))

	first, last := tailWindow(size)
	tail, err := r.fetch(ctx, url, first, last)
	if err != nil {
		return nil, err
	}
	end, err := parseDirectoryEnd(tail)
	if err != nil {
		return nil, err
	}
	r.log.Debug("central directory",
		zap.Uint32("offset", end.dirOffset),
		zap.Uint32("size", end.dirSize),
		zap.Uint16("records", end.records))

	dir := &directory{size: size, end: end}
	if end.dirSize == 0 {
		return dir, nil
	}
	dirFirst := uint64(end.dirOffset)
	dirLast := dirFirst + uint64(end.dirSize) - 1
	if dirLast >= size {
		return nil, newError(KindFormat,
			"central directory (offset %d, size %d) is outside the archive", end.dirOffset, end.dirSize)
	}
	cd, err := r.fetch(ctx, url, dirFirst, dirLast)
	if err != nil {
		return nil, err
	}
	dir.entries = parseDirectory(cd)
	return dir, nil
}

// readPayload reads the Local File Header of e and then its compressed
// data.
func (r *Reader) readPayload(ctx context.Context, url string, size uint64, e *Entry) ([]byte, error) {
	if e.CompressedSize == 0 {
		return nil, nil
	}
	first, last := localHeaderRange(e.LocalHeaderOffset)
	if last >= size {
		return nil, newError(KindFormat, "local file header of %s is outside the archive", e.Name)
	}
	header, err := r.fetch(ctx, url, first, last)
	if err != nil {
		return nil, err
	}
	pr, ok, err := resolvePayload(e, header)
	if err != nil || !ok {
		return nil, err
	}
	if pr.last >= size {
		return nil, newError(KindFormat, "data of %s is outside the archive", e.Name)
	}
	r.log.Debug("payload range",
		zap.String("name", e.Name),
		zap.Uint64("first", pr.first),
		zap.Uint64("last", pr.last),
		zap.Uint64("bytes", pr.size()))
	return r.fetch(ctx, url, pr.first, pr.last)
}

// fetch reads bytes [first, last] and insists on getting all of them.
func (r *Reader) fetch(ctx context.Context, url string, first, last uint64) ([]byte, error) {
	b, err := r.fetcher.FetchRange(ctx, url, first, last)
	if err != nil {
		return nil, err
	}
	if want := last - first + 1; uint64(len(b)) != want {
		return nil, newError(KindTruncatedRange,
			"short read for bytes %d-%d: got %d of %d bytes", first, last, len(b), want)
	}
	return b, nil
}
