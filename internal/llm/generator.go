package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Prompt is the structured input to the generation service.
type Prompt struct {
	System   string
	Context  string
	History  string
	Question string
}

// User renders the non-system part of the prompt the way the generation
// models receive it.
func (p Prompt) User() string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(p.Context)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(p.Question)
	sb.WriteString("\n\nChat history (may help):\n")
	sb.WriteString(p.History)
	return sb.String()
}

// Generator produces an answer for a prompt. Implementations wrap a remote
// model behind a bounded timeout and retry policy.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GenerateError reports a generation failure after retries were exhausted.
type GenerateError struct {
	Provider string
	Err      error
}

func (e *GenerateError) Error() string {
	return fmt.Sprintf("%s generation: %v", e.Provider, e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 32 * time.Second
)

// backoffWait sleeps for the exponential backoff duration of the given
// attempt (1-based), or returns early if the context ends.
func backoffWait(ctx context.Context, attempt int) error {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
