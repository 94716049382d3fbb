// Package answer turns accepted evidence into a grounded, cited answer by
// delegating synthesis to the generation collaborator.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/docqa/decision"
	"github.com/fabfab/docqa/llm"
)

// ErrGeneration reports a failure of the generation collaborator. It is
// never downgraded to a refusal: a refusal is a confident decision, not an
// error state.
var ErrGeneration = errors.New("answer generation failed")

// RefusalMessage is the literal text returned whenever the gate refuses.
// It is a constant, not model output, so a refusal can never hallucinate.
const RefusalMessage = "I'm sorry, but I cannot provide an answer based on the information available in the uploaded documents. Please provide more context or ask a different question."

const defaultMaxContextChars = 8000

type Composer struct {
	llm             llm.Client
	maxContextChars int
	logger          *log.Logger
}

func NewComposer(client llm.Client, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.Default()
	}

	return &Composer{
		llm:             client,
		maxContextChars: defaultMaxContextChars,
		logger:          logger,
	}
}

// Compose builds the grounded prompt from the evidence, in the order
// delivered, and asks the collaborator for an answer. Nothing beyond the
// evidence text and the literal question reaches the model.
func (c *Composer) Compose(ctx context.Context, question string, evidence []decision.Match) (string, error) {
	if c.llm == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	if len(evidence) == 0 {
		return "", fmt.Errorf("compose called without evidence")
	}

	contextBlock := buildContextBlock(evidence, c.maxContextChars)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt()},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, contextBlock)},
	}

	generated, err := c.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	generated = strings.TrimSpace(generated)
	if generated == "" {
		return "", fmt.Errorf("%w: collaborator returned empty output", ErrGeneration)
	}

	return generated, nil
}

// SourceTag is the citation label for an evidence chunk, e.g. "notes.pdf#2".
func SourceTag(match decision.Match) string {
	return fmt.Sprintf("%s#%d", match.Document, match.ChunkIndex)
}

func buildContextBlock(evidence []decision.Match, limit int) string {
	var sb strings.Builder
	for _, match := range evidence {
		entry := fmt.Sprintf("[%s]\n%s\n\n", SourceTag(match), strings.TrimSpace(match.Text))
		if sb.Len() > 0 && sb.Len()+len(entry) > limit {
			break
		}
		sb.WriteString(entry)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func systemPrompt() string {
	return "You are a helpful, professional assistant.\n" +
		"STRICT RULES:\n" +
		"- Use ONLY the information provided in the context below.\n" +
		"- Do NOT guess, assume, or use outside knowledge.\n" +
		"- If the answer is not explicitly stated, politely say it is not available.\n" +
		"- Keep the tone natural and conversational.\n" +
		"- Cite the relevant source tags (e.g., [report.pdf#1]) when answering."
}

func formatUserPrompt(question, contextBlock string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\nUser question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
