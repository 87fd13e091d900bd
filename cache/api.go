package cache

import (
	"context"
	"errors"
	"time"
)

// MaxKeySize is the largest accepted key length in bytes. Larger keys are
// rejected by Read and never stored.
const MaxKeySize = 2 * 1024

// ErrNoFallback is returned by Read when the key is absent and no fallback
// was provided.
var ErrNoFallback = errors.New("cache: no fallback provided")

// ErrKeyTooLarge is returned by Read for keys longer than MaxKeySize.
var ErrKeyTooLarge = errors.New("cache: key exceeds MaxKeySize")

// ErrUseClosed is returned by Read on a Use handle that has been closed.
var ErrUseClosed = errors.New("cache: use handle is closed")

// Fallback produces a value for a missing key. It runs outside the engine
// lock and may block; concurrent calls for the same key are coalesced so
// that at most one Fallback per key runs at a time.
type Fallback func(ctx context.Context, key string) (FallbackResult, error)

// FallbackResult is the outcome of a successful fallback.
type FallbackResult struct {
	Value []byte

	// ExpiresAt is the absolute expiration time of the produced value.
	// The zero time means the value never expires.
	ExpiresAt time.Time
}

// Outcome is what a queued GetWithFallback caller eventually observes:
// either the value produced by another caller's fallback, or a token
// promoting this caller to run the fallback itself. Exactly one field
// is non-nil.
type Outcome struct {
	Value *Value
	Token *FillToken
}
