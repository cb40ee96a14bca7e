package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonwraymond/pipecache/pipeline"
)

// ByteRange is an inclusive range of byte offsets.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the range.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange renders the Content-Range value for r. A negative total is
// written as "*".
func (r ByteRange) ContentRange(total int64) string {
	size := "*"
	if total >= 0 {
		size = strconv.FormatInt(total, 10)
	}
	return fmt.Sprintf("bytes %d-%d/%s", r.Start, r.End, size)
}

// UnsatisfiedRange renders the Content-Range value sent with a 416.
func UnsatisfiedRange(total int64) string {
	if total < 0 {
		return "bytes */*"
	}
	return "bytes */" + strconv.FormatInt(total, 10)
}

// ParseRange parses a single-range "bytes=" header against a resource of
// total bytes; total is negative when unknown. The end of the range is
// clamped to the resource. Malformed headers, multiple ranges and ranges
// that start past the end fail with pipeline.ErrRangeNotSatisfiable.
func ParseRange(header string, total int64) (ByteRange, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return ByteRange{}, unsatisfiable("unsupported unit in %q", header)
	}
	if strings.Contains(set, ",") {
		return ByteRange{}, unsatisfiable("multiple ranges in %q", header)
	}
	first, last, ok := strings.Cut(strings.TrimSpace(set), "-")
	if !ok {
		return ByteRange{}, unsatisfiable("malformed range %q", header)
	}

	if first == "" {
		// Suffix range: the final n bytes.
		n, err := parseOffset(last)
		if err != nil || n == 0 {
			return ByteRange{}, unsatisfiable("malformed suffix %q", header)
		}
		if total < 0 {
			return ByteRange{}, unsatisfiable("suffix range on unknown length")
		}
		if total == 0 {
			return ByteRange{}, unsatisfiable("empty resource")
		}
		n = min(n, total)
		return ByteRange{Start: total - n, End: total - 1}, nil
	}

	start, err := parseOffset(first)
	if err != nil {
		return ByteRange{}, unsatisfiable("malformed start %q", header)
	}
	if total >= 0 && start >= total {
		return ByteRange{}, unsatisfiable("start %d beyond length %d", start, total)
	}

	var end int64
	if last == "" {
		if total < 0 {
			return ByteRange{}, unsatisfiable("open range on unknown length")
		}
		end = total - 1
	} else {
		end, err = parseOffset(last)
		if err != nil || end < start {
			return ByteRange{}, unsatisfiable("malformed end %q", header)
		}
		if total >= 0 {
			end = min(end, total-1)
		}
	}
	return ByteRange{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(s, 10, 64)
}

func unsatisfiable(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{pipeline.ErrRangeNotSatisfiable}, args...)...)
}
