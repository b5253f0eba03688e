package keycard

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/card"
	"github.com/cardium/cardium/pkg/transport"
)

// SecureChannel encrypts and MAC-chains commands per the Keycard
// protocol. Every wrapped command replaces the payload with
// MAC | ciphertext; the MAC doubles as the IV of the next exchange, so
// a single lost or reordered APDU invalidates the whole session.
type SecureChannel struct {
	session     *Session
	level       apdu.SecurityLevel
	established bool
}

// NewSecureChannel wraps an established session. The channel starts at
// encryption plus integrity; PIN verification upgrades it to full.
func NewSecureChannel(session *Session) *SecureChannel {
	return &SecureChannel{
		session:     session,
		level:       apdu.LevelEncMAC(),
		established: true,
	}
}

// Level reports the protection currently in force.
func (c *SecureChannel) Level() apdu.SecurityLevel {
	if !c.established {
		return apdu.LevelNone()
	}
	return c.level
}

// Active mirrors Established for pipeline dispatch.
func (c *SecureChannel) Active() bool {
	return c.established
}

// Established reports whether the channel is usable.
func (c *SecureChannel) Established() bool {
	return c.established
}

// Close wipes the session keys. The applet has no explicit close; the
// card forgets the session on the next OPEN SECURE CHANNEL or reset.
func (c *SecureChannel) Close() error {
	c.established = false
	if c.session != nil {
		c.session.Zero()
	}
	return nil
}

// markAuthenticated records a successful PIN verification, raising the
// channel to full protection.
func (c *SecureChannel) markAuthenticated() {
	c.level = apdu.LevelFull()
}

// wrap encrypts the command payload and prepends the session MAC.
func (c *SecureChannel) wrap(cmd *apdu.Command) (*apdu.Command, error) {
	encrypted, err := encryptData(cmd.Data, c.session.keys.enc, c.session.iv)
	if err != nil {
		return nil, err
	}
	if len(encrypted)+16 > apdu.MaxData {
		return nil, &apdu.CommandError{Field: "data", Size: len(encrypted) + 16}
	}

	var meta [16]byte
	meta[0] = cmd.Cla
	meta[1] = cmd.Ins
	meta[2] = cmd.P1
	meta[3] = cmd.P2
	meta[4] = byte(len(encrypted) + 16)

	if err := c.session.updateIV(meta, encrypted); err != nil {
		return nil, err
	}

	iv := c.session.IV()
	data := make([]byte, 0, 16+len(encrypted))
	data = append(data, iv[:]...)
	data = append(data, encrypted...)

	wrapped := apdu.New(cmd.Cla, cmd.Ins, cmd.P1, cmd.P2).WithData(data)
	wrapped.Ne = cmd.Ne
	return wrapped, nil
}

// unwrap verifies the response MAC and decrypts the payload, which
// carries its own trailing status word.
func (c *SecureChannel) unwrap(resp *apdu.Response) (*apdu.Response, error) {
	if !resp.IsSuccess() {
		// Errors outside the channel envelope pass through.
		return resp, nil
	}
	if len(resp.Data) < 16 {
		return nil, &ParseError{Reason: "secured response shorter than its MAC"}
	}

	mac := resp.Data[:16]
	encrypted := resp.Data[16:]

	plain, err := decryptData(encrypted, c.session.keys.enc, c.session.iv)
	if err != nil {
		return nil, err
	}

	var meta [16]byte
	meta[0] = byte(len(resp.Data))
	if err := c.session.updateIV(meta, encrypted); err != nil {
		return nil, err
	}

	iv := c.session.IV()
	if subtle.ConstantTimeCompare(mac, iv[:]) != 1 {
		c.Close()
		return nil, &card.AuthError{Reason: "response MAC mismatch"}
	}

	return apdu.ParseResponse(plain)
}

// Process sends one command through the channel.
func (c *SecureChannel) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	if !c.established {
		return nil, card.ErrNotEstablished
	}

	wrapped, err := c.wrap(cmd)
	if err != nil {
		return nil, err
	}

	raw, err := wrapped.Encode()
	if err != nil {
		return nil, err
	}

	respRaw, err := tr.TransmitRaw(raw)
	if err != nil {
		return nil, err
	}

	resp, err := apdu.ParseResponse(respRaw)
	if err != nil {
		return nil, err
	}
	return c.unwrap(resp)
}

// Provider opens Keycard secure channels against one pairing slot.
type Provider struct {
	pairing PairingInfo
	cardKey *secp256k1.PublicKey

	// Rand sources the ephemeral key and authentication challenge;
	// nil means crypto/rand.
	Rand io.Reader
}

// NewProvider builds a provider from pairing credentials and the card
// public key advertised by SELECT.
func NewProvider(pairing PairingInfo, cardKey *secp256k1.PublicKey) *Provider {
	return &Provider{pairing: pairing, cardKey: cardKey}
}

func (p *Provider) random() io.Reader {
	if p.Rand != nil {
		return p.Rand
	}
	return rand.Reader
}

// OpenSecureChannel runs OPEN SECURE CHANNEL plus MUTUALLY
// AUTHENTICATE and returns the established channel. The requested
// level is advisory: the channel always comes up at encryption plus
// integrity and reaches full only after PIN verification.
func (p *Provider) OpenSecureChannel(tr transport.Transport, _ apdu.SecurityLevel) (card.SecureChannel, error) {
	if p.cardKey == nil {
		return nil, &ParseError{Reason: "card key unknown, select the applet first"}
	}

	priv, err := secp256k1.GeneratePrivateKeyFromRand(p.random())
	if err != nil {
		return nil, err
	}

	stage := card.Identity{}
	cmd := NewOpenSecureChannel(p.pairing.Index, priv.PubKey().SerializeUncompressed())
	resp, err := stage.Process(cmd, tr)
	if err != nil {
		return nil, err
	}
	params, err := OpenSecureChannelResolver.Resolve(resp)
	if err != nil {
		return nil, err
	}

	secret := sharedSecret(priv, p.cardKey)
	session := DeriveSession(secret, p.pairing.Key, params.Challenge, params.IV)
	channel := NewSecureChannel(session)

	if err := p.mutuallyAuthenticate(channel, tr); err != nil {
		channel.Close()
		return nil, err
	}
	return channel, nil
}

// mutuallyAuthenticate proves both sides derived the same session keys
// by exchanging challenges through the encrypted channel.
func (p *Provider) mutuallyAuthenticate(channel *SecureChannel, tr transport.Transport) error {
	var challenge [32]byte
	if _, err := io.ReadFull(p.random(), challenge[:]); err != nil {
		return err
	}

	resp, err := channel.Process(NewMutuallyAuthenticate(challenge), tr)
	if err != nil {
		return &card.AuthError{Reason: "mutual authentication failed"}
	}
	if _, err := MutuallyAuthenticateResolver.Resolve(resp); err != nil {
		return &card.AuthError{Reason: "mutual authentication failed"}
	}
	return nil
}
