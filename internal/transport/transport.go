// Package transport streams structured requests to a model provider and
// delivers exactly one completion callback per send.
package transport

import (
	"context"

	"github.com/coedit/pkg/models"
)

// Request is one outgoing model call.
type Request struct {
	ID       string
	Role     string
	Content  string
	Metadata models.RequestMetadata
}

// Completion carries the accumulated response text back to the caller. On
// transport failure Err is non-nil and Text may be empty or partial; the
// metadata always round-trips verbatim so completions can be correlated
// without heuristics.
type Completion struct {
	Text         string
	FinishReason string
	Metadata     models.RequestMetadata
	Err          error
}

// CompletionFunc receives the result of a send. Invoked exactly once.
type CompletionFunc func(Completion)

// Transport is the consumed model-transport capability. Send is
// fire-and-forget from the caller's perspective; the completion callback
// may run on another goroutine.
type Transport interface {
	Send(ctx context.Context, req Request, onComplete CompletionFunc)
}
