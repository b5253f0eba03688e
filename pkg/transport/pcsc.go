package transport

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// Config controls how the PC/SC connection is opened.
type Config struct {
	// ShareMode for the reader. Exclusive by default: secure sessions
	// cannot survive another process talking to the card.
	ShareMode scard.ShareMode

	// Protocols accepted during negotiation. Offering both T=0 and T=1
	// avoids "Parameter Incorrect" errors on readers that only speak one.
	Protocols scard.Protocol

	// AutoReconnect re-establishes the physical connection after the
	// card reports a reset. The interrupted command still fails with
	// ErrCardReset; only the link is repaired.
	AutoReconnect bool
}

// DefaultConfig returns the recommended settings.
func DefaultConfig() Config {
	return Config{
		ShareMode:     scard.ShareExclusive,
		Protocols:     scard.ProtocolT0 | scard.ProtocolT1,
		AutoReconnect: true,
	}
}

// PCSC is a Transport over a PC/SC reader.
type PCSC struct {
	ctx    *scard.Context
	card   *scard.Card
	reader string
	cfg    Config
}

// ListReaders enumerates the attached PC/SC readers.
func ListReaders() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: establishing context: %w", err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		return nil, fmt.Errorf("transport: listing readers: %w", err)
	}
	return readers, nil
}

// Connect opens a connection to the card in the given reader. An empty
// reader name picks the first one found.
func Connect(reader string, cfg Config) (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: establishing context: %w", err)
	}

	if reader == "" {
		readers, err := ctx.ListReaders()
		if err != nil || len(readers) == 0 {
			ctx.Release()
			return nil, ErrNoReaders
		}
		reader = readers[0]
	}

	card, err := ctx.Connect(reader, cfg.ShareMode, cfg.Protocols)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("transport: connecting to %q: %w", reader, err)
	}

	return &PCSC{ctx: ctx, card: card, reader: reader, cfg: cfg}, nil
}

// Reader returns the name of the connected reader.
func (t *PCSC) Reader() string {
	return t.reader
}

// TransmitRaw exchanges one raw APDU with the card.
func (t *PCSC) TransmitRaw(cmd []byte) ([]byte, error) {
	if t.card == nil {
		return nil, ErrNotConnected
	}

	resp, err := t.card.Transmit(cmd)
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, scard.ErrResetCard) && t.cfg.AutoReconnect {
		if recErr := t.reconnect(); recErr != nil {
			return nil, fmt.Errorf("transport: reconnect after reset: %w", recErr)
		}
		// Link repaired, but the command did not reach the card in any
		// defined state. Surface the reset instead of retrying.
		return nil, ErrCardReset
	}

	return nil, fmt.Errorf("transport: transmit: %w", err)
}

// Reset power-cycles the card and reconnects.
func (t *PCSC) Reset() error {
	if t.card == nil {
		return ErrNotConnected
	}
	if err := t.card.Disconnect(scard.ResetCard); err != nil {
		return fmt.Errorf("transport: reset disconnect: %w", err)
	}
	t.card = nil
	return t.reconnect()
}

// IsConnected reports whether a card handle is held.
func (t *PCSC) IsConnected() bool {
	return t.card != nil
}

// Close disconnects from the card and releases the PC/SC context.
func (t *PCSC) Close() error {
	var firstErr error
	if t.card != nil {
		if err := t.card.Disconnect(scard.LeaveCard); err != nil {
			firstErr = fmt.Errorf("transport: disconnect: %w", err)
		}
		t.card = nil
	}
	if t.ctx != nil {
		if err := t.ctx.Release(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: releasing context: %w", err)
		}
		t.ctx = nil
	}
	return firstErr
}

func (t *PCSC) reconnect() error {
	card, err := t.ctx.Connect(t.reader, t.cfg.ShareMode, t.cfg.Protocols)
	if err != nil {
		return err
	}
	t.card = card
	return nil
}
