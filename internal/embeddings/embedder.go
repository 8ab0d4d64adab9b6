package embeddings

import (
	"context"
	"fmt"
	"time"
)

// Embedder converts text into fixed-dimension vectors. Implementations must
// preserve input order and return one vector per input.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of produced vectors.
	Dimension() int
}

// EmbedError reports an embedding failure after retries were exhausted.
// No partial batch is ever returned alongside it.
type EmbedError struct {
	Provider string
	Err      error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("%s embeddings: %v", e.Provider, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

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
