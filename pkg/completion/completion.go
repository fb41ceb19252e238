// Package completion wraps the external text-generation collaborator. The
// engine never propagates a completion failure to clients: callers
// substitute deterministic fallbacks on error or empty output.
package completion

import (
	"context"
	"io"
)

// Role tags for request messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one ordered, role-tagged message of a request.
type ChatMessage struct {
	Role    string
	Name    string
	Content string
}

// Request is a completion call: persona/system prompt, ordered role-tagged
// messages, sampling knobs.
type Request struct {
	System      string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// TokenStream yields text deltas until io.EOF.
type TokenStream interface {
	// Recv returns the next text delta, or io.EOF at end of stream.
	Recv() (string, error)
	Close()
}

// Service is the opaque completion collaborator.
type Service interface {
	// Complete returns a single text blob.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream returns a sequence of text deltas terminated by io.EOF.
	Stream(ctx context.Context, req Request) (TokenStream, error)
}

// Drain collects a stream into one string, tolerating a nil stream.
func Drain(ts TokenStream) (string, error) {
	if ts == nil {
		return "", nil
	}
	defer ts.Close()
	var out []byte
	for {
		delta, err := ts.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, delta...)
	}
}
