package globalplatform

import (
	"crypto/subtle"

	"github.com/cardium/cardium/pkg/card"
)

// Keys is an SCP02 key set: one key for encryption and cryptograms,
// one for command MACs. Most cards personalize a single value for both.
type Keys struct {
	enc Key
	mac Key
}

// NewKeys creates a key set with distinct encryption and MAC keys.
func NewKeys(enc, mac Key) Keys {
	return Keys{enc: enc, mac: mac}
}

// KeysFromSingleKey uses one key for both roles.
func KeysFromSingleKey(key Key) Keys {
	return Keys{enc: key, mac: key}
}

// DefaultKeys returns the well-known GlobalPlatform test key
// (40 41 ... 4F), the factory default on development cards.
func DefaultKeys() Keys {
	return KeysFromSingleKey(Key{
		0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47,
		0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F,
	})
}

// Enc returns the encryption key.
func (k Keys) Enc() Key { return k.enc }

// Mac returns the MAC key.
func (k Keys) Mac() Key { return k.mac }

// Session holds the SCP02 session state: keys derived for this
// sequence counter, and the challenges exchanged during initialization.
type Session struct {
	keys          Keys
	seq           [2]byte
	cardChallenge [6]byte
	hostChallenge [8]byte
}

// NewSession derives session keys from an INITIALIZE UPDATE response
// and verifies the card's cryptogram. The SCP version announced in the
// key info must be 02.
func NewSession(cardKeys Keys, init *InitializeUpdateData, hostChallenge [8]byte) (*Session, error) {
	if v := init.KeyInfo[1]; v != SCP02 {
		return nil, &UnsupportedSCPError{Version: v}
	}

	sessionENC, err := deriveKey(cardKeys.Enc(), init.SequenceCounter, derivationENC)
	if err != nil {
		return nil, err
	}
	sessionMAC, err := deriveKey(cardKeys.Mac(), init.SequenceCounter, derivationMAC)
	if err != nil {
		return nil, err
	}

	expected, err := calculateCryptogram(sessionENC, init.SequenceCounter, init.CardChallenge, hostChallenge, false)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(expected[:], init.CardCryptogram[:]) != 1 {
		return nil, &card.AuthError{Reason: "card cryptogram mismatch"}
	}

	return &Session{
		keys:          NewKeys(sessionENC, sessionMAC),
		seq:           init.SequenceCounter,
		cardChallenge: init.CardChallenge,
		hostChallenge: hostChallenge,
	}, nil
}

// Keys returns the derived session keys.
func (s *Session) Keys() Keys { return s.keys }

// SequenceCounter returns the card's sequence counter for this session.
func (s *Session) SequenceCounter() [2]byte { return s.seq }

// HostCryptogram computes the proof the host sends back in EXTERNAL
// AUTHENTICATE.
func (s *Session) HostCryptogram() ([8]byte, error) {
	return calculateCryptogram(s.keys.Enc(), s.seq, s.cardChallenge, s.hostChallenge, true)
}

// Zero wipes the session key material.
func (s *Session) Zero() {
	s.keys.enc = Key{}
	s.keys.mac = Key{}
	s.cardChallenge = [6]byte{}
	s.hostChallenge = [8]byte{}
	s.seq = [2]byte{}
}
