package remotezip

import (
	"bytes"
	"io"
	"math"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// maxPrealloc caps the output buffer reserved up front from the
// uncompressed size in the Central Directory, which is not trusted.
const maxPrealloc = 64 << 20

// supportedMethod reports whether FetchEntry can decode method.
func supportedMethod(method uint16) bool {
	return method == Store || method == Deflate
}

// decompress returns the uncompressed content of e given its compressed
// payload. Store payloads are returned as is. A non-zero limit caps the
// output size.
func decompress(e *Entry, payload []byte, limit uint64) ([]byte, error) {
	switch e.Method {
	case Store:
		if limit > 0 && uint64(len(payload)) > limit {
			return nil, newError(KindDecompression,
				"%s exceeds the entry size limit of %d bytes", e.Name, limit)
		}
		return payload, nil
	case Deflate:
		data, err := inflate(payload, e.UncompressedSize, limit)
		if errors.Is(err, errTooLarge) {
			return nil, newError(KindDecompression,
				"%s exceeds the entry size limit of %d bytes", e.Name, limit)
		}
		return data, err
	default:
		return nil, newError(KindUnsupportedCompression,
			"unsupported compression method %d", e.Method)
	}
}

var errTooLarge = errors.New("inflated data exceeds limit")

// inflate decodes a raw deflate stream (no zlib or gzip framing). With a
// non-zero limit, at most limit bytes are inflated; more returns
// errTooLarge.
func inflate(payload []byte, sizeHint uint32, limit uint64) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(payload))
	defer fr.Close()

	hint := uint64(sizeHint)
	if hint > maxPrealloc {
		hint = maxPrealloc
	}
	if limit > 0 && hint > limit {
		hint = limit
	}
	src := io.Reader(fr)
	if limit > 0 && limit < math.MaxInt64 {
		src = io.LimitReader(fr, int64(limit)+1)
	}
	out := bytes.NewBuffer(make([]byte, 0, hint))
	if _, err := io.Copy(out, src); err != nil {
		return nil, wrapError(KindDecompression, err, "corrupt deflate stream")
	}
	if limit > 0 && uint64(out.Len()) > limit {
		return nil, errTooLarge
	}
	return out.Bytes(), nil
}
