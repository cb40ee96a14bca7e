package reader

import (
	"errors"
	"testing"

	"github.com/jonwraymond/pipecache/pipeline"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		total  int64
		want   ByteRange
	}{
		{"bytes=0-99", 500, ByteRange{0, 99}},
		{"bytes=100-", 500, ByteRange{100, 499}},
		{"bytes=-50", 500, ByteRange{450, 499}},
		{"bytes=-900", 500, ByteRange{0, 499}},
		{"bytes=400-9999", 500, ByteRange{400, 499}},
		{"bytes=499-499", 500, ByteRange{499, 499}},
		{" bytes= 5 - 9 ", 500, ByteRange{5, 9}},
		{"bytes=10-19", -1, ByteRange{10, 19}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.header, tt.total)
		if err != nil {
			t.Errorf("ParseRange(%q, %d): %v", tt.header, tt.total, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRange(%q, %d) = %+v, want %+v", tt.header, tt.total, got, tt.want)
		}
	}
}

func TestParseRange_Unsatisfiable(t *testing.T) {
	tests := []struct {
		header string
		total  int64
	}{
		{"items=0-1", 500},
		{"bytes=0-1,5-6", 500},
		{"bytes=abc", 500},
		{"bytes=9-3", 500},
		{"bytes=500-", 500},
		{"bytes=-0", 500},
		{"bytes=-", 500},
		{"bytes=+1-2", 500},
		{"bytes=-5", 0},
		{"bytes=-5", -1},
		{"bytes=5-", -1},
	}
	for _, tt := range tests {
		if _, err := ParseRange(tt.header, tt.total); !errors.Is(err, pipeline.ErrRangeNotSatisfiable) {
			t.Errorf("ParseRange(%q, %d) err = %v", tt.header, tt.total, err)
		}
	}
}

func TestByteRange_Headers(t *testing.T) {
	br := ByteRange{Start: 0, End: 99}
	if br.Length() != 100 {
		t.Errorf("Length = %d", br.Length())
	}
	if got := br.ContentRange(500); got != "bytes 0-99/500" {
		t.Errorf("ContentRange = %q", got)
	}
	if got := br.ContentRange(-1); got != "bytes 0-99/*" {
		t.Errorf("ContentRange unknown = %q", got)
	}
	if UnsatisfiedRange(500) != "bytes */500" || UnsatisfiedRange(-1) != "bytes */*" {
		t.Error("UnsatisfiedRange")
	}
}
