package stream

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	const size = 1000

	tests := []struct {
		header  string
		want    ByteRange
		partial bool
		unsat   bool
	}{
		{"", ByteRange{}, false, false},
		{"bytes=0-99", ByteRange{0, 99}, true, false},
		{"bytes=900-", ByteRange{900, 999}, true, false},
		{"bytes=500-5000", ByteRange{500, 999}, true, false},
		{"bytes=999-999", ByteRange{999, 999}, true, false},
		{"bytes=-100", ByteRange{900, 999}, true, false},
		{"bytes=-5000", ByteRange{0, 999}, true, false},
		{"bytes=0-99,200-299", ByteRange{0, 99}, true, false},
		{"bytes= 10 - 19", ByteRange{10, 19}, true, false},
		{"bytes=1000-", ByteRange{}, false, true},
		{"bytes=1500-1600", ByteRange{}, false, true},
		{"bytes=-0", ByteRange{}, false, true},
		{"bytes=abc-", ByteRange{}, false, false},
		{"bytes=50-10", ByteRange{}, false, false},
		{"bytes=10", ByteRange{}, false, false},
		{"items=0-10", ByteRange{}, false, false},
		{"bytes=-x", ByteRange{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, partial, err := ParseRange(tt.header, size)

			if tt.unsat {
				if !errors.Is(err, ErrUnsatisfiable) {
					t.Fatalf("expected ErrUnsatisfiable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if partial != tt.partial {
				t.Errorf("partial = %v, want %v", partial, tt.partial)
			}
			if partial && got != tt.want {
				t.Errorf("range = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRange_EmptyFile(t *testing.T) {
	if _, _, err := ParseRange("bytes=0-", 0); !errors.Is(err, ErrUnsatisfiable) {
		t.Errorf("expected ErrUnsatisfiable for empty file, got %v", err)
	}
	if _, _, err := ParseRange("bytes=-10", 0); !errors.Is(err, ErrUnsatisfiable) {
		t.Errorf("expected ErrUnsatisfiable for suffix on empty file, got %v", err)
	}
}

func TestByteRange_Length(t *testing.T) {
	if n := (ByteRange{Start: 0, End: 99}).Length(); n != 100 {
		t.Errorf("expected 100, got %d", n)
	}
}
