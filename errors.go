package remotezip

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the errors returned by Reader operations. Callers
// should branch on Kind instead of matching error messages.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindTransport is a failed remote fetch or a non-success status.
	KindTransport
	// KindMetadata means the archive size could not be determined.
	KindMetadata
	// KindTruncatedRange means fewer bytes arrived than were requested.
	KindTruncatedRange
	// KindFormat covers a missing EOCD record or a malformed Central
	// Directory.
	KindFormat
	// KindNotFound means the requested path is not in the archive.
	KindNotFound
	// KindUnsupportedCompression is any method other than store or deflate.
	KindUnsupportedCompression
	// KindDecompression means the deflate stream was corrupt or short.
	KindDecompression
)

var kindNames = [...]string{
	KindUnknown:                "unknown error",
	KindTransport:              "transport error",
	KindMetadata:               "metadata error",
	KindTruncatedRange:         "truncated range",
	KindFormat:                 "format error",
	KindNotFound:               "not found",
	KindUnsupportedCompression: "unsupported compression",
	KindDecompression:          "decompression error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is the error type returned by this package. Msg is short and
// safe to show to an end user; Err, if set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Sentinels for use with errors.Is. They match any *Error of the same
// Kind.
var (
	ErrTransport              = &Error{Kind: KindTransport}
	ErrMetadata               = &Error{Kind: KindMetadata}
	ErrTruncatedRange         = &Error{Kind: KindTruncatedRange}
	ErrFormat                 = &Error{Kind: KindFormat}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnsupportedCompression = &Error{Kind: KindUnsupportedCompression}
	ErrDecompression          = &Error{Kind: KindDecompression}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. A target with
// a message only matches an identical message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}
