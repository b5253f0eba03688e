package globalplatform

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/card"
	"github.com/cardium/cardium/pkg/transport"
)

// Wrapper appends the SCP02 C-MAC to commands. The MAC of each command
// becomes the chaining vector of the next, binding the sequence
// together: drop or reorder one command and the card rejects the rest.
type Wrapper struct {
	macKey Key
	icv    [8]byte
}

// NewWrapper creates a wrapper keyed with the session MAC key.
func NewWrapper(macKey Key) *Wrapper {
	return &Wrapper{macKey: macKey}
}

// ICV returns the current chaining vector.
func (w *Wrapper) ICV() [8]byte {
	return w.icv
}

// Wrap returns a copy of cmd with the secure messaging class bit set
// and the MAC appended. The MAC covers the modified header, the Lc
// already counting the MAC, and the payload; Le is excluded.
func (w *Wrapper) Wrap(cmd *apdu.Command) (*apdu.Command, error) {
	if len(cmd.Data)+8 > apdu.MaxData {
		return nil, &apdu.CommandError{Field: "data", Size: len(cmd.Data) + 8}
	}

	cla := cmd.Cla | 0x04

	macInput := make([]byte, 0, 5+len(cmd.Data))
	macInput = append(macInput, cla, cmd.Ins, cmd.P1, cmd.P2, byte(len(cmd.Data)+8))
	macInput = append(macInput, cmd.Data...)

	mac, err := macFull3DES(w.macKey, w.icv, macInput)
	if err != nil {
		return nil, err
	}
	w.icv = mac

	data := make([]byte, 0, len(cmd.Data)+8)
	data = append(data, cmd.Data...)
	data = append(data, mac[:]...)

	wrapped := apdu.New(cla, cmd.Ins, cmd.P1, cmd.P2).WithData(data)
	wrapped.Ne = cmd.Ne
	return wrapped, nil
}

// SecureChannel is the established SCP02 channel: a pipeline stage
// that MAC-wraps every command. Responses are not protected in SCP02's
// C-MAC mode and pass through untouched.
type SecureChannel struct {
	session     *Session
	wrapper     *Wrapper
	level       apdu.SecurityLevel
	established bool
}

// Process wraps and transmits one command.
func (c *SecureChannel) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	if !c.established {
		return nil, card.ErrNotEstablished
	}

	wrapped, err := c.wrapper.Wrap(cmd)
	if err != nil {
		return nil, fmt.Errorf("globalplatform: wrapping command: %w", err)
	}

	return (card.Identity{}).Process(wrapped, tr)
}

// Level reports the security negotiated during EXTERNAL AUTHENTICATE.
func (c *SecureChannel) Level() apdu.SecurityLevel {
	return c.level
}

// Active mirrors Established.
func (c *SecureChannel) Active() bool {
	return c.established
}

// Established reports whether the handshake completed.
func (c *SecureChannel) Established() bool {
	return c.established
}

// Close discards the session keys. SCP02 cannot be resumed; a new
// INITIALIZE UPDATE exchange is required.
func (c *SecureChannel) Close() error {
	c.established = false
	c.session.Zero()
	return nil
}

// Session exposes the underlying session, mainly for diagnostics.
func (c *SecureChannel) Session() *Session {
	return c.session
}

// Provider negotiates SCP02 channels from a static key set.
type Provider struct {
	keys Keys

	// Rand sources host challenges; nil means crypto/rand.
	Rand io.Reader
}

// NewProvider creates a channel factory around the card's static keys.
func NewProvider(keys Keys) *Provider {
	return &Provider{keys: keys}
}

// OpenSecureChannel runs the full SCP02 handshake: INITIALIZE UPDATE,
// session key derivation and cryptogram verification, then a MAC-wrapped
// EXTERNAL AUTHENTICATE carrying the requested security level. Only
// C-MAC protection is implemented; a request for command encryption is
// refused rather than advertised and not delivered.
func (p *Provider) OpenSecureChannel(tr transport.Transport, level apdu.SecurityLevel) (card.SecureChannel, error) {
	if level.Encryption {
		return nil, &card.InsufficientSecurityError{Required: level, Current: levelAuthMAC()}
	}

	random := p.Rand
	if random == nil {
		random = rand.Reader
	}

	var hostChallenge [8]byte
	if _, err := io.ReadFull(random, hostChallenge[:]); err != nil {
		return nil, fmt.Errorf("globalplatform: generating host challenge: %w", err)
	}

	// T=0 cards may hand the 28-byte payload back through GET RESPONSE.
	stage := card.NewGetResponse(0)

	resp, err := stage.Process(NewInitializeUpdate(hostChallenge), tr)
	if err != nil {
		return nil, fmt.Errorf("globalplatform: INITIALIZE UPDATE: %w", err)
	}
	init, err := InitializeUpdateResolver.Resolve(resp)
	if err != nil {
		return nil, fmt.Errorf("globalplatform: INITIALIZE UPDATE: %w", err)
	}

	session, err := NewSession(p.keys, init, hostChallenge)
	if err != nil {
		return nil, err
	}

	hostCryptogram, err := session.HostCryptogram()
	if err != nil {
		session.Zero()
		return nil, err
	}

	wrapper := NewWrapper(session.Keys().Mac())
	extAuth, err := wrapper.Wrap(NewExternalAuthenticate(hostCryptogram, P1_AUTH_CMAC))
	if err != nil {
		session.Zero()
		return nil, err
	}

	resp, err = stage.Process(extAuth, tr)
	if err != nil {
		session.Zero()
		return nil, fmt.Errorf("globalplatform: EXTERNAL AUTHENTICATE: %w", err)
	}
	if _, err := ExternalAuthenticateResolver.Resolve(resp); err != nil {
		session.Zero()
		return nil, &card.AuthError{Reason: fmt.Sprintf("EXTERNAL AUTHENTICATE: %v", err)}
	}

	return &SecureChannel{
		session:     session,
		wrapper:     wrapper,
		level:       levelAuthMAC(),
		established: true,
	}, nil
}
