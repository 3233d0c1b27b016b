package llm

import (
	"context"
)

// Client sends one prompt to a language model and returns its answer
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
