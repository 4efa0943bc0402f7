// Package contentrange parses Content-Range response headers and builds
// the matching Range request headers (RFC 7233, bytes unit only).
package contentrange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrParse            = errors.New("content-range parse error")
	ErrUnsupportedUnit  = errors.New("unsupported unit")
	ErrUnsupportedField = errors.New("unsupported field")
	ErrInvalidRange     = errors.New("invalid byte range")
)

// Range is a parsed Content-Range. First and Last are -1 for an
// unsatisfied range ("bytes */1234"); Length is -1 when the complete
// length is unknown ("bytes 0-9/*").
type Range struct {
	First  int64
	Last   int64
	Length int64
}

// Size returns the number of bytes covered by r, or 0 for an
// unsatisfied range.
func (r Range) Size() int64 {
	if r.First < 0 || r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Header formats an inclusive byte interval as a Range request header
// value, e.g. "bytes=0-21".
func Header(first, last uint64) (string, error) {
	if last < first {
		return "", fmt.Errorf("%w: %d-%d", ErrInvalidRange, first, last)
	}
	return "bytes=" + strconv.FormatUint(first, 10) + "-" + strconv.FormatUint(last, 10), nil
}

// ParseRange is Parse returning a Range.
func ParseRange(str string) (Range, error) {
	first, last, length, err := Parse(str)
	if err != nil {
		return Range{-1, -1, -1}, err
	}
	return Range{First: first, Last: last, Length: length}, nil
}

// Parse parse content of a Content-Range header.
func Parse(str string) (first, last, length int64, err error) {
	split := func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}

		switch r {
		case '-', '/':
			return true
		}
		return false
	}

	fields := strings.FieldsFunc(str, split)

	if len(fields) == 0 {
		return -1, -1, -1, ErrParse
	}
	if fields[0] != "bytes" {
		return -1, -1, -1, ErrUnsupportedUnit
	}

	if len(fields) == 4 {
		first, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return -1, -1, -1, fmt.Errorf("can't parse first: %w", err)
		}
		last, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return -1, -1, -1, fmt.Errorf("can't parse last: %w", err)
		}
		if last < first {
			return -1, -1, -1, fmt.Errorf("%w: %d-%d", ErrInvalidRange, first, last)
		}
		length := int64(-1)
		if fields[3] != "*" {
			length, err = strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return -1, -1, -1, fmt.Errorf("can't parse length: %w", err)
			}
			if last >= length {
				return -1, -1, -1, fmt.Errorf("%w: %d-%d/%d", ErrInvalidRange, first, last, length)
			}
		}

		return first, last, length, nil
	}

	if len(fields) == 3 {
		if fields[1] != "*" {
			return -1, -1, -1, ErrUnsupportedField
		}

		length, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return -1, -1, -1, fmt.Errorf("can't parse length: %w", err)
		}

		return -1, -1, length, nil
	}

	return -1, -1, -1, ErrParse
}
