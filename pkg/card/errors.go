package card

import (
	"errors"
	"fmt"

	"github.com/cardium/cardium/pkg/apdu"
)

var (
	// ErrNotEstablished means a secure-channel operation ran before the
	// channel finished its handshake, or after it was closed.
	ErrNotEstablished = errors.New("card: secure channel not established")

	// ErrNoProvider means a secure channel was requested but the
	// executor has no provider to build one.
	ErrNoProvider = errors.New("card: no secure channel provider configured")
)

// ChainLimitError reports a GET RESPONSE chain exceeding its bound,
// which points at a card stuck announcing more data forever.
type ChainLimitError struct {
	Limit int
}

func (e *ChainLimitError) Error() string {
	return fmt.Sprintf("card: response chain exceeded %d continuation fetches", e.Limit)
}

// AuthError reports a failed mutual authentication: a cryptogram or
// MAC that did not verify, or a handshake payload of the wrong shape.
// The session involved is dead and its keys have been discarded.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("card: authentication failed: %s", e.Reason)
}

// InsufficientSecurityError reports a command whose minimum security
// level could not be met, even after the executor's one upgrade
// attempt. It carries both sides of the comparison.
type InsufficientSecurityError struct {
	Required apdu.SecurityLevel
	Current  apdu.SecurityLevel
}

func (e *InsufficientSecurityError) Error() string {
	return fmt.Sprintf("card: insufficient security level: required %s, current %s", e.Required, e.Current)
}
