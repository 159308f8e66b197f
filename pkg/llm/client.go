// Package llm defines the external model collaborator interface and its
// provider implementations. The rest of the system talks to one Client and
// never to a vendor SDK directly.
package llm

import (
	"context"
)

// Request is a single completion request. System carries the fixed
// instructions; Prompt carries the assembled request text.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is a completed generation.
type Response struct {
	Content string
	Model   string
}

// Client is the external model collaborator. Implementations must honor
// context cancellation and classify their failures as TransportError so
// callers can distinguish provider trouble from their own bugs.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	ModelName() string
}
