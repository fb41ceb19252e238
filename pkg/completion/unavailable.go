package completion

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnavailable marks calls made without a configured upstream service.
var ErrUnavailable = errors.New("completion service not configured")

// Unavailable is the Service used when no API key is configured. Every
// call fails with ErrUnavailable, which routes the engine onto its
// deterministic fallbacks instead of crashing at startup.
type Unavailable struct{}

func (Unavailable) Complete(_ context.Context, _ Request) (string, error) {
	return "", ErrUnavailable
}

func (Unavailable) Stream(_ context.Context, _ Request) (TokenStream, error) {
	return nil, ErrUnavailable
}
