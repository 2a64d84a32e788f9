package media

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reelsmith/studio/internal/apperr"
)

var (
	ErrInvalidRange  = apperr.New(apperr.KindValidation, "INVALID_RANGE", "malformed Range header")
	ErrUnsatisfiable = apperr.New(apperr.KindValidation, "RANGE_NOT_SATISFIABLE", "range lies outside the file")
)

// Span is one satisfiable byte range of a file.
type Span struct {
	Offset int64
	Length int64
}

// ContentRange formats the Content-Range header for a file of total bytes.
func (s Span) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Offset, s.Offset+s.Length-1, total)
}

// ParseSpan reads a single-range "bytes=" header against a file of size
// bytes. An empty header returns nil. Only the first range of a
// multi-range request is honoured; the end is clamped to the file.
func ParseSpan(header string, size int64) (*Span, error) {
	if header == "" {
		return nil, nil
	}
	rangeSet, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(rangeSet, ","); multi {
		rangeSet = first
	}
	from, to, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	last := size - 1
	var start, end int64
	switch {
	case from == "":
		// Suffix form: the final n bytes.
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		start, end = max(size-n, 0), last
	default:
		var err error
		if start, err = strconv.ParseInt(from, 10, 64); err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end = last
		if to != "" {
			if end, err = strconv.ParseInt(to, 10, 64); err != nil {
				return nil, ErrInvalidRange
			}
		}
	}

	if start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	end = min(end, last)
	return &Span{Offset: start, Length: end - start + 1}, nil
}
