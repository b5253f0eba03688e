// Package transport carries raw APDU bytes to a card and back. It knows
// nothing about command structure or status words; higher layers own
// encoding, dispatch and secure messaging.
package transport

import "errors"

// Transport is a byte-level channel to a single card.
type Transport interface {
	// TransmitRaw sends one encoded command and returns the raw reply
	// (data field plus status word). It never retries a command: if the
	// card was reset underneath the connection, the call fails with
	// ErrCardReset after the physical link has been re-established, so
	// the caller can invalidate session state before trying again.
	TransmitRaw(cmd []byte) ([]byte, error)

	// Reset power-cycles the card. Any secure session is dead afterwards.
	Reset() error

	// IsConnected reports whether the channel can currently transmit.
	IsConnected() bool

	// Close releases the connection and its resources.
	Close() error
}

var (
	// ErrNoReaders means no PC/SC reader is attached.
	ErrNoReaders = errors.New("transport: no smart card reader found")

	// ErrNotConnected means the transport was closed or never connected.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrCardReset means the card was reset (removed, reinserted, or
	// warm-reset by another process) during an exchange. The physical
	// connection has been re-established when configured to do so, but
	// every session key negotiated before the reset is invalid.
	ErrCardReset = errors.New("transport: card was reset")
)
