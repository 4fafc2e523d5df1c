package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"pdf-rag/internal/models"
)

// alphabet returns n characters cycling through a-z, so windows at different offsets differ
func alphabet(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	return sb.String()
}

func TestSplitText_ExampleWindows(t *testing.T) {
	text := alphabet(2500)

	s, err := NewSplitter(1000, 500)
	if err != nil {
		t.Fatalf("NewSplitter failed: %v", err)
	}
	chunks := s.SplitText(text)
	want := []string{text[0:1000], text[500:1500], text[1000:2000], text[1500:2500]}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d does not match window", i)
		}
	}
}

func TestSplitText_Properties(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		size    int
		overlap int
		want    int
	}{
		{name: "empty", length: 0, size: 1000, overlap: 500, want: 0},
		{name: "shorter than window", length: 10, size: 1000, overlap: 500, want: 1},
		{name: "exactly one window", length: 1000, size: 1000, overlap: 500, want: 1},
		{name: "one past window", length: 1001, size: 1000, overlap: 500, want: 2},
		{name: "no overlap", length: 2500, size: 1000, overlap: 0, want: 3},
		{name: "tiny windows", length: 10, size: 3, overlap: 2, want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("NewSplitter failed: %v", err)
			}
			text := alphabet(tt.length)

			chunks := s.SplitText(text)
			if len(chunks) != tt.want {
				t.Fatalf("expected %d chunks, got %d", tt.want, len(chunks))
			}
			if !reflect.DeepEqual(chunks, s.SplitText(text)) {
				t.Fatalf("splitting is not deterministic")
			}
			for i, c := range chunks {
				if len(c) > tt.size {
					t.Errorf("chunk %d longer than %d: %d", i, tt.size, len(c))
				}
				if i < len(chunks)-1 && len(c) != tt.size {
					t.Errorf("non-final chunk %d has length %d, want %d", i, len(c), tt.size)
				}
				if i > 0 {
					prev := chunks[i-1]
					if got, want := c[:tt.overlap], prev[len(prev)-tt.overlap:]; got != want {
						t.Errorf("chunk %d does not overlap previous by %d characters", i, tt.overlap)
					}
				}
			}
			if len(chunks) > 0 && !strings.HasSuffix(text, chunks[len(chunks)-1]) {
				t.Errorf("last chunk does not reach the end of the text")
			}
		})
	}
}

func TestSplitText_CountsRunes(t *testing.T) {
	s, err := NewSplitter(4, 2)
	if err != nil {
		t.Fatalf("NewSplitter failed: %v", err)
	}
	chunks := s.SplitText("äöüßéè")
	want := []string{"äöüß", "üßéè"}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("expected %q, got %q", want, chunks)
	}
}

func TestNewSplitter_Invalid(t *testing.T) {
	for _, tc := range [][2]int{{0, 0}, {-1, 0}, {10, 10}, {10, 11}, {10, -1}} {
		if _, err := NewSplitter(tc[0], tc[1]); !errors.Is(err, models.ErrConfig) {
			t.Errorf("NewSplitter(%d, %d): expected ErrConfig, got %v", tc[0], tc[1], err)
		}
	}
}

func TestSplit_KeepsDocumentBoundaries(t *testing.T) {
	s, err := NewSplitter(4, 1)
	if err != nil {
		t.Fatalf("NewSplitter failed: %v", err)
	}
	docs := []models.Document{
		{Content: "abcdefg", Source: "/data/a.pdf", Page: 1},
		{Content: "", Source: "/data/a.pdf", Page: 2},
		{Content: "hij", Source: "/data/a.pdf", Page: 3},
	}

	chunks := s.Split(docs)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}

	want := []models.Chunk{
		{ID: "a.pdf#p1#c1", Content: "abcd", Source: "/data/a.pdf", PageNumber: 1, ChunkID: 1},
		{ID: "a.pdf#p1#c2", Content: "defg", Source: "/data/a.pdf", PageNumber: 1, ChunkID: 2},
		{ID: "a.pdf#p3#c1", Content: "hij", Source: "/data/a.pdf", PageNumber: 3, ChunkID: 1},
	}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("unexpected chunks:\n got %+v\nwant %+v", chunks, want)
	}
}
