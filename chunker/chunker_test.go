package chunker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSplitReconstructsNormalizedText(t *testing.T) {
	text := "The   quick brown\nfox jumps over\t\tthe lazy dog near the\n\nriver bank today"

	cases := []struct {
		size    int
		overlap int
	}{
		{size: 5, overlap: 2},
		{size: 3, overlap: 1},
		{size: 4, overlap: 0},
		{size: 100, overlap: 10},
	}

	for _, tc := range cases {
		chunks, err := Split(text, tc.size, tc.overlap)
		if err != nil {
			t.Fatalf("Split(size=%d, overlap=%d): %v", tc.size, tc.overlap, err)
		}

		if got, want := Join(chunks), Normalize(text); got != want {
			t.Fatalf("Join(Split(size=%d, overlap=%d)) = %q, want %q", tc.size, tc.overlap, got, want)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon ", 40)

	first, err := Split(text, 7, 3)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		again, err := Split(text, 7, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different chunk sequence", i+1)
		}
	}
}

func TestSplitRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative overlap", size: 5, overlap: -1},
		{name: "overlap equals size", size: 5, overlap: 5},
		{name: "overlap exceeds size", size: 5, overlap: 8},
	}

	for _, tc := range cases {
		if _, err := Split("some words here", tc.size, tc.overlap); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", tc.name, err)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t \n"} {
		chunks, err := Split(text, 10, 2)
		if err != nil {
			t.Fatalf("Split(%q): %v", text, err)
		}
		if len(chunks) != 0 {
			t.Fatalf("Split(%q) produced %d chunks, want 0", text, len(chunks))
		}
	}
}

func TestSplitOverlapRepeatsTrailingWords(t *testing.T) {
	text := "one two three four five six seven eight nine ten"

	chunks, err := Split(text, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := strings.Split(chunks[i-1].Text, " ")
		curr := strings.Split(chunks[i].Text, " ")

		if chunks[i].Overlap != 2 {
			t.Fatalf("chunk %d: overlap = %d, want 2", i, chunks[i].Overlap)
		}

		tail := strings.Join(prev[len(prev)-2:], " ")
		head := strings.Join(curr[:2], " ")
		if tail != head {
			t.Fatalf("chunk %d does not repeat previous tail: %q vs %q", i, tail, head)
		}
	}
}

func TestSplitOffsetsTraceIntoNormalizedText(t *testing.T) {
	text := "  alpha   beta gamma\ndelta epsilon zeta eta theta  "
	normalized := Normalize(text)

	chunks, err := Split(text, 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	for _, chunk := range chunks {
		if got := normalized[chunk.Start:chunk.End]; got != chunk.Text {
			t.Fatalf("chunk %d: offsets [%d:%d] yield %q, want %q", chunk.Index, chunk.Start, chunk.End, got, chunk.Text)
		}
	}
}

func TestSplitSingleChunkHasNoOverlap(t *testing.T) {
	chunks, err := Split("just a few words", 100, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Overlap != 0 {
		t.Fatalf("first chunk overlap = %d, want 0", chunks[0].Overlap)
	}
}
