// Package decision implements the confidence gate that chooses between
// answering from retrieved evidence and refusing outright.
package decision

import "fmt"

// Match is one retrieved chunk with its similarity score, carrying enough
// attribution to cite the source document.
type Match struct {
	ChunkID    string
	Document   string
	ChunkIndex int
	Text       string
	Score      float64
}

// Decision is the gate's verdict. When Answerable, Evidence holds every
// retrieved chunk at or above the threshold, in descending score order.
// When refused, Reason explains why.
type Decision struct {
	Answerable bool
	Evidence   []Match
	Reason     string
}

// Decide applies the confidence rule to a retrieval result ordered by
// descending similarity. The question is answerable only when the best score
// meets the threshold; a score exactly equal to the threshold meets it.
// Every retrieved chunk at or above the threshold is kept as evidence, so
// mid-ranked hits are never silently dropped.
//
// Decide is pure: identical inputs always produce the identical decision.
func Decide(retrieval []Match, threshold float64) Decision {
	if len(retrieval) == 0 {
		return Decision{Reason: "no matching content retrieved"}
	}

	best := retrieval[0].Score
	if best < threshold {
		return Decision{
			Reason: fmt.Sprintf("best similarity %.4f below threshold %.4f", best, threshold),
		}
	}

	evidence := make([]Match, 0, len(retrieval))
	for _, match := range retrieval {
		if match.Score >= threshold {
			evidence = append(evidence, match)
		}
	}

	return Decision{Answerable: true, Evidence: evidence}
}
