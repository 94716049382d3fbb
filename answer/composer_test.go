package answer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/fabfab/docqa/decision"
	"github.com/fabfab/docqa/llm"
)

type stubLLM struct {
	answer   string
	err      error
	messages []llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.messages = messages
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

func discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func evidence() []decision.Match {
	return []decision.Match{
		{ChunkID: "c1", Document: "report.pdf", ChunkIndex: 2, Text: "Revenue grew 12% in Q3.", Score: 0.8},
		{ChunkID: "c2", Document: "notes.txt", ChunkIndex: 0, Text: "Q3 results were discussed at length.", Score: 0.5},
	}
}

func TestComposeReturnsCollaboratorAnswer(t *testing.T) {
	client := &stubLLM{answer: "  Revenue grew 12% [report.pdf#2].  "}
	composer := NewComposer(client, discard())

	got, err := composer.Compose(context.Background(), "How did revenue change?", evidence())
	if err != nil {
		t.Fatal(err)
	}
	if got != "Revenue grew 12% [report.pdf#2]." {
		t.Fatalf("answer = %q", got)
	}
}

func TestComposePromptContainsEvidenceAndQuestionOnly(t *testing.T) {
	client := &stubLLM{answer: "answer"}
	composer := NewComposer(client, discard())

	if _, err := composer.Compose(context.Background(), "How did revenue change?", evidence()); err != nil {
		t.Fatal(err)
	}

	if len(client.messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(client.messages))
	}

	user := client.messages[1].Content
	for _, want := range []string{
		"[report.pdf#2]",
		"Revenue grew 12% in Q3.",
		"[notes.txt#0]",
		"How did revenue change?",
	} {
		if !strings.Contains(user, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, user)
		}
	}

	if !strings.Contains(client.messages[0].Content, "ONLY the information provided") {
		t.Fatal("system prompt must pin the model to the supplied context")
	}
}

func TestComposeKeepsEvidenceOrder(t *testing.T) {
	client := &stubLLM{answer: "answer"}
	composer := NewComposer(client, discard())

	if _, err := composer.Compose(context.Background(), "question?", evidence()); err != nil {
		t.Fatal(err)
	}

	user := client.messages[1].Content
	first := strings.Index(user, "[report.pdf#2]")
	second := strings.Index(user, "[notes.txt#0]")
	if first < 0 || second < 0 || first > second {
		t.Fatal("evidence must appear in delivered (descending similarity) order")
	}
}

func TestComposeBoundsContextButKeepsFirstChunk(t *testing.T) {
	client := &stubLLM{answer: "answer"}
	composer := NewComposer(client, discard())
	composer.maxContextChars = 100

	big := []decision.Match{
		{ChunkID: "c1", Document: "a.txt", ChunkIndex: 0, Text: strings.Repeat("lead ", 60), Score: 0.9},
		{ChunkID: "c2", Document: "b.txt", ChunkIndex: 0, Text: strings.Repeat("tail ", 60), Score: 0.6},
	}

	if _, err := composer.Compose(context.Background(), "question?", big); err != nil {
		t.Fatal(err)
	}

	user := client.messages[1].Content
	if !strings.Contains(user, "[a.txt#0]") {
		t.Fatal("highest-ranked evidence must always be included")
	}
	if strings.Contains(user, "[b.txt#0]") {
		t.Fatal("evidence beyond the context bound must be dropped")
	}
}

func TestComposeWrapsGenerationFailure(t *testing.T) {
	client := &stubLLM{err: errors.New("timeout")}
	composer := NewComposer(client, discard())

	_, err := composer.Compose(context.Background(), "question?", evidence())
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestComposeRejectsEmptyCollaboratorOutput(t *testing.T) {
	client := &stubLLM{answer: "   "}
	composer := NewComposer(client, discard())

	_, err := composer.Compose(context.Background(), "question?", evidence())
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration for empty output, got %v", err)
	}
}

func TestComposeRequiresEvidence(t *testing.T) {
	composer := NewComposer(&stubLLM{answer: "x"}, discard())

	if _, err := composer.Compose(context.Background(), "question?", nil); err == nil {
		t.Fatal("expected error when composing without evidence")
	}
}
