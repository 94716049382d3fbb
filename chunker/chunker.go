// Package chunker splits extracted document text into overlapping,
// word-bounded chunks that serve as the unit of retrieval.
package chunker

import (
	"errors"
	"strings"
)

// ErrConfiguration reports invalid chunking parameters.
var ErrConfiguration = errors.New("invalid chunking configuration")

// Chunk is a contiguous span of a document's normalized text. Start and End
// are byte offsets into the normalized text so evidence can be traced back to
// its position. Overlap is the number of leading words repeated from the
// previous chunk.
type Chunk struct {
	Index   int
	Text    string
	Start   int
	End     int
	Overlap int
}

// Normalize collapses all whitespace runs to single spaces and trims the
// result. Chunk offsets are relative to this normalized form.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split cuts text into chunks of at most size words, each repeating the
// trailing overlap words of its predecessor. Splitting happens only on word
// boundaries. Empty input yields an empty slice. The output is fully
// determined by the input and parameters.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrConfiguration
	}

	normalized := Normalize(text)
	if normalized == "" {
		return nil, nil
	}

	words := strings.Split(normalized, " ")

	// Byte offset of each word within the normalized text.
	offsets := make([]int, len(words))
	pos := 0
	for i, word := range words {
		offsets[i] = pos
		pos += len(word) + 1
	}

	step := size - overlap
	chunks := make([]Chunk, 0, (len(words)+step-1)/step)

	start := 0
	for start < len(words) {
		end := start + size
		if end > len(words) {
			end = len(words)
		}

		lap := 0
		if start > 0 {
			lap = overlap
		}

		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    strings.Join(words[start:end], " "),
			Start:   offsets[start],
			End:     offsets[end-1] + len(words[end-1]),
			Overlap: lap,
		})

		if end == len(words) {
			break
		}
		start += step
	}

	return chunks, nil
}

// Join reconstructs the normalized text from a chunk sequence by discarding
// each chunk's leading overlap words. It is the inverse of Split over
// normalized input.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for _, chunk := range chunks {
		words := strings.Split(chunk.Text, " ")
		if chunk.Overlap >= len(words) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.Join(words[chunk.Overlap:], " "))
	}
	return sb.String()
}
