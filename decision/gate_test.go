package decision

import (
	"reflect"
	"testing"
)

func retrieval(scores ...float64) []Match {
	matches := make([]Match, len(scores))
	for i, score := range scores {
		matches[i] = Match{
			ChunkID:    string(rune('a' + i)),
			Document:   "doc.txt",
			ChunkIndex: i,
			Text:       "chunk text",
			Score:      score,
		}
	}
	return matches
}

func TestDecideEmptyRetrievalRefuses(t *testing.T) {
	verdict := Decide(nil, 0.25)
	if verdict.Answerable {
		t.Fatal("empty retrieval must refuse")
	}
	if verdict.Reason == "" {
		t.Fatal("refusal must carry a reason")
	}
}

func TestDecideThresholdBoundary(t *testing.T) {
	const threshold = 0.25
	const epsilon = 1e-9

	if verdict := Decide(retrieval(threshold), threshold); !verdict.Answerable {
		t.Fatalf("top score exactly at threshold must be answerable, got refusal: %s", verdict.Reason)
	}

	if verdict := Decide(retrieval(threshold-epsilon), threshold); verdict.Answerable {
		t.Fatal("top score just below threshold must refuse")
	}
}

func TestDecideMonotonicInThreshold(t *testing.T) {
	matches := retrieval(0.8, 0.5, 0.3)

	answerable := true
	for _, threshold := range []float64{-1, 0, 0.3, 0.5, 0.79, 0.8, 0.81, 1} {
		verdict := Decide(matches, threshold)
		if verdict.Answerable && !answerable {
			t.Fatalf("raising threshold to %v flipped a refusal back to answerable", threshold)
		}
		answerable = verdict.Answerable
	}
}

func TestDecideKeepsAllEvidenceAboveThreshold(t *testing.T) {
	matches := retrieval(0.9, 0.6, 0.4, 0.1)

	verdict := Decide(matches, 0.4)
	if !verdict.Answerable {
		t.Fatalf("expected answerable, got refusal: %s", verdict.Reason)
	}

	if len(verdict.Evidence) != 3 {
		t.Fatalf("evidence length = %d, want 3", len(verdict.Evidence))
	}
	for i := 1; i < len(verdict.Evidence); i++ {
		if verdict.Evidence[i].Score > verdict.Evidence[i-1].Score {
			t.Fatal("evidence must stay in descending score order")
		}
	}
	for _, match := range verdict.Evidence {
		if match.Score < 0.4 {
			t.Fatalf("evidence contains score %v below threshold", match.Score)
		}
	}
}

func TestDecideDeterministic(t *testing.T) {
	matches := retrieval(0.7, 0.31, 0.25)

	first := Decide(matches, 0.3)
	for i := 0; i < 10; i++ {
		if again := Decide(matches, 0.3); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different decision", i+1)
		}
	}
}
