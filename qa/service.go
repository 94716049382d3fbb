// Package qa runs the question-answering workflow: retrieve session
// evidence, gate on confidence, then compose a grounded answer or refuse.
package qa

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/docqa/answer"
	"github.com/fabfab/docqa/decision"
	"github.com/fabfab/docqa/session"
)

const (
	defaultTopK      = 3
	defaultThreshold = 0.25
)

type Service struct {
	store     *session.Store
	composer  *answer.Composer
	topK      int
	threshold float64
	logger    *log.Logger
}

type Options struct {
	TopK      int
	Threshold float64
}

func NewService(store *session.Store, composer *answer.Composer, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Threshold == 0 {
		opts.Threshold = defaultThreshold
	}

	return &Service{
		store:     store,
		composer:  composer,
		topK:      opts.TopK,
		threshold: opts.Threshold,
		logger:    logger,
	}
}

// Source is one cited evidence chunk of an answer.
type Source struct {
	Document string
	Chunk    int
	Snippet  string
	Score    float64
}

// Response is the outcome of one question. Refused responses carry the
// literal refusal message as their answer; they are successful responses,
// not errors.
type Response struct {
	Answer  string
	Refused bool
	Reason  string
	Sources []Source
}

// Ask answers a question from the session's uploaded documents, or refuses
// when the evidence is not similar enough.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question cannot be empty")
	}

	matches, err := s.store.Retrieve(ctx, sessionID, question, s.topK)
	if err != nil {
		return Response{}, err
	}

	verdict := decision.Decide(matches, s.threshold)
	if !verdict.Answerable {
		s.logger.Printf("session %s: refused (%s)", sessionID, verdict.Reason)
		return Response{Answer: answer.RefusalMessage, Refused: true, Reason: verdict.Reason}, nil
	}

	composed, err := s.composer.Compose(ctx, question, verdict.Evidence)
	if err != nil {
		return Response{}, err
	}

	sources := make([]Source, len(verdict.Evidence))
	for i, match := range verdict.Evidence {
		sources[i] = Source{
			Document: match.Document,
			Chunk:    match.ChunkIndex,
			Snippet:  snippet(match.Text),
			Score:    match.Score,
		}
	}

	return Response{Answer: composed, Sources: sources}, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 500 {
		return text[:500] + "..."
	}
	return text
}
