package store

import (
	"fmt"
	"strings"
)

const (
	// maxSegment bounds one encoded directory name. Longer segments continue
	// in a child directory whose parent name ends in '+'.
	maxSegment = 200

	emptySegment = "="
	continuation = '+'
	upperHex     = "0123456789ABCDEF"
)

func passThrough(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '(', c == ')':
		return true
	}
	return false
}

// EncodeKey maps a key to a slash-separated relative path. Every level of
// the result is a valid file name that never contains '.', so names with a
// dot are free for temporary and lock files.
func EncodeKey(key string) string {
	segments := strings.Split(key, "/")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, encodeSegment(seg)...)
	}
	return strings.Join(parts, "/")
}

func encodeSegment(seg string) []string {
	if seg == "" {
		return []string{emptySegment}
	}

	var parts []string
	var b strings.Builder
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		width := 1
		if !passThrough(c) {
			width = 3
		}
		if b.Len()+width > maxSegment {
			b.WriteByte(continuation)
			parts = append(parts, b.String())
			b.Reset()
		}
		if width == 1 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0F])
	}
	return append(parts, b.String())
}

// DecodeKey reverses EncodeKey.
func DecodeKey(path string) (string, error) {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))

	var cur strings.Builder
	pending := false
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: empty path element in %q", ErrInvalidEncoding, path)
		}
		if part == emptySegment && !pending {
			segments = append(segments, "")
			continue
		}

		more := part[len(part)-1] == continuation
		if more {
			part = part[:len(part)-1]
		}
		if err := decodeInto(&cur, part); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidEncoding, path, err)
		}
		if more {
			pending = true
			continue
		}
		segments = append(segments, cur.String())
		cur.Reset()
		pending = false
	}
	if pending {
		return "", fmt.Errorf("%w: dangling continuation in %q", ErrInvalidEncoding, path)
	}
	return strings.Join(segments, "/"), nil
}

func decodeInto(b *strings.Builder, part string) error {
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c != '%' {
			if !passThrough(c) {
				return fmt.Errorf("unexpected byte %q", c)
			}
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(part) {
			return fmt.Errorf("truncated escape at %d", i)
		}
		hi, ok1 := unhex(part[i+1])
		lo, ok2 := unhex(part[i+2])
		if !ok1 || !ok2 {
			return fmt.Errorf("bad escape %q", part[i:i+3])
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
