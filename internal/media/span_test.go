package media

import (
	"errors"
	"testing"
)

func TestParseSpan(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		size       int64
		wantOffset int64
		wantLength int64
		wantNil    bool
		wantErr    error
	}{
		{"empty header", "", 1000, 0, 0, true, nil},
		{"whole file", "bytes=0-999", 1000, 0, 1000, false, nil},
		{"open end", "bytes=500-", 1000, 500, 500, false, nil},
		{"suffix", "bytes=-500", 1000, 500, 500, false, nil},
		{"single byte", "bytes=0-0", 1000, 0, 1, false, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 1000, false, nil},
		{"suffix longer than file", "bytes=-2000", 500, 0, 500, false, nil},
		{"last byte", "bytes=999-", 1000, 999, 1, false, nil},
		{"first of several", "bytes=0-99, 200-299", 1000, 0, 100, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"past the end", "bytes=1500-2000", 1000, 0, 0, false, ErrUnsatisfiable},
		{"reversed", "bytes=20-10", 1000, 0, 0, false, ErrUnsatisfiable},
		{"no unit", "invalid", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "chars=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad end", "bytes=0-abc", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
		{"no dash", "bytes=100", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSpan(tt.header, tt.size)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseSpan() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSpan() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseSpan() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ParseSpan() = nil, want span")
			}
			if got.Offset != tt.wantOffset || got.Length != tt.wantLength {
				t.Errorf("ParseSpan() = %+v, want offset %d length %d", got, tt.wantOffset, tt.wantLength)
			}
		})
	}
}

func TestSpanContentRange(t *testing.T) {
	s := Span{Offset: 100, Length: 50}
	if got := s.ContentRange(1000); got != "bytes 100-149/1000" {
		t.Errorf("ContentRange() = %q", got)
	}
}
