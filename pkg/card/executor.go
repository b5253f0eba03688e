package card

import (
	"fmt"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/transport"
)

// SecureChannel is a pipeline stage that also carries session state.
// It is Active once its handshake completed, and Close must discard
// the session keys.
type SecureChannel interface {
	Processor

	// Established reports whether the handshake completed and the
	// channel is protecting traffic.
	Established() bool

	// Close tears the channel down and zeroes its key material.
	Close() error
}

// Provider knows how to negotiate a secure channel on a transport.
type Provider interface {
	// OpenSecureChannel performs the full handshake and returns an
	// established channel providing at least the requested level.
	OpenSecureChannel(tr transport.Transport, level apdu.SecurityLevel) (SecureChannel, error)
}

// Executor is the single entry point for talking to a card. It owns
// the transport, a stage pipeline, and the security policy deciding
// when a secure channel must be opened.
type Executor struct {
	tr       transport.Transport
	stages   Pipeline
	channel  SecureChannel
	provider Provider

	// Trace, when set, observes every command and response passing
	// through Transmit. Direction is ">>" for commands, "<<" for
	// responses.
	Trace func(direction string, cmd *apdu.Command, resp *apdu.Response)
}

// NewExecutor creates an executor with the default pipeline: a GET
// RESPONSE continuation fetcher over plain exchanges.
func NewExecutor(tr transport.Transport) *Executor {
	return NewExecutorWithStages(tr, NewGetResponse(0))
}

// NewExecutorWithStages creates an executor with a custom pipeline.
func NewExecutorWithStages(tr transport.Transport, stages ...Processor) *Executor {
	return &Executor{tr: tr, stages: stages}
}

// Transport exposes the underlying transport, mainly for providers.
func (e *Executor) Transport() transport.Transport {
	return e.tr
}

// SetProvider installs the secure channel factory used for automatic
// security upgrades.
func (e *Executor) SetProvider(p Provider) {
	e.provider = p
}

// Level is the security currently in force: the channel's level when
// one is established, none otherwise.
func (e *Executor) Level() apdu.SecurityLevel {
	if e.channel != nil && e.channel.Established() {
		return e.channel.Level()
	}
	return apdu.LevelNone()
}

// SecureChannel returns the current channel, established or not.
func (e *Executor) SecureChannel() SecureChannel {
	return e.channel
}

// OpenSecureChannel negotiates a channel through the configured
// provider and installs it at the head of the pipeline.
func (e *Executor) OpenSecureChannel(level apdu.SecurityLevel) error {
	if e.provider == nil {
		return ErrNoProvider
	}
	if e.channel != nil {
		e.channel.Close()
		e.channel = nil
	}

	ch, err := e.provider.OpenSecureChannel(e.tr, level)
	if err != nil {
		return fmt.Errorf("opening secure channel: %w", err)
	}
	e.channel = ch
	return nil
}

// Transmit routes a command through the pipeline without consulting
// its security requirement. An established secure channel takes
// precedence over the configured stages.
func (e *Executor) Transmit(cmd *apdu.Command) (*apdu.Response, error) {
	if e.Trace != nil {
		e.Trace(">>", cmd, nil)
	}

	var resp *apdu.Response
	var err error
	if e.channel != nil && e.channel.Established() {
		resp, err = e.channel.Process(cmd, e.tr)
	} else {
		resp, err = e.stages.Process(cmd, e.tr)
	}
	if err != nil {
		return nil, err
	}

	if e.Trace != nil {
		e.Trace("<<", cmd, resp)
	}
	return resp, nil
}

// TransmitRaw bypasses the pipeline entirely.
func (e *Executor) TransmitRaw(raw []byte) ([]byte, error) {
	return e.tr.TransmitRaw(raw)
}

// Reset power-cycles the card and discards all session state. The
// pipeline's stateless stages survive; the secure channel does not.
func (e *Executor) Reset() error {
	if e.channel != nil {
		e.channel.Close()
		e.channel = nil
	}
	return e.tr.Reset()
}

// Close tears down the channel and the transport.
func (e *Executor) Close() error {
	if e.channel != nil {
		e.channel.Close()
		e.channel = nil
	}
	return e.tr.Close()
}

// ensureSecurity enforces a command's minimum level. When the current
// level falls short it makes exactly one upgrade attempt through the
// provider; a second shortfall is terminal.
func (e *Executor) ensureSecurity(required apdu.SecurityLevel) error {
	current := e.Level()
	if current.Satisfies(required) {
		return nil
	}

	if e.provider == nil {
		return &InsufficientSecurityError{Required: required, Current: current}
	}

	if err := e.OpenSecureChannel(required); err != nil {
		return err
	}

	current = e.Level()
	if !current.Satisfies(required) {
		return &InsufficientSecurityError{Required: required, Current: current}
	}
	return nil
}

// Execute sends a command under the executor's security policy and
// dispatches the response through the family's resolver.
func Execute[T any](e *Executor, cmd *apdu.Command, resolver apdu.Resolver[T]) (T, error) {
	var zero T

	if err := e.ensureSecurity(cmd.Level); err != nil {
		return zero, err
	}

	resp, err := e.Transmit(cmd)
	if err != nil {
		return zero, err
	}

	return resolver.Resolve(resp)
}
