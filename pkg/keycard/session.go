package keycard

// Key is a 32-byte AES-256 session or pairing key.
type Key [32]byte

// Keys bundles the session encryption and MAC keys.
type Keys struct {
	enc Key
	mac Key
}

// NewKeys builds a key set from explicit keys.
func NewKeys(enc, mac Key) Keys {
	return Keys{enc: enc, mac: mac}
}

// Enc returns the encryption key.
func (k Keys) Enc() Key { return k.enc }

// Mac returns the MAC key.
func (k Keys) Mac() Key { return k.mac }

// Session holds the secure channel state: the derived keys and the
// rolling IV. The IV starts as the salt returned by OPEN SECURE
// CHANNEL and is replaced by the MAC of every APDU that crosses the
// channel, in both directions.
type Session struct {
	keys Keys
	iv   [16]byte
}

// NewSession builds a session from already-derived keys, mainly useful
// for replaying recorded exchanges.
func NewSession(keys Keys, iv [16]byte) *Session {
	return &Session{keys: keys, iv: iv}
}

// DeriveSession runs the session key derivation for an ECDH secret and
// pairing key against the challenge and salt returned by OPEN SECURE
// CHANNEL.
func DeriveSession(secret, pairingKey Key, challenge [32]byte, iv [16]byte) *Session {
	enc, mac := deriveSessionKeys(secret, pairingKey, challenge)
	return &Session{keys: NewKeys(enc, mac), iv: iv}
}

// Keys returns the session keys.
func (s *Session) Keys() Keys { return s.keys }

// IV returns the current rolling IV.
func (s *Session) IV() [16]byte { return s.iv }

// updateIV folds an APDU into the session chain.
func (s *Session) updateIV(meta [16]byte, data []byte) error {
	mac, err := calculateMAC(s.keys.mac, meta, data)
	if err != nil {
		return err
	}
	s.iv = mac
	return nil
}

// Zero wipes the session key material.
func (s *Session) Zero() {
	s.keys.enc = Key{}
	s.keys.mac = Key{}
	s.iv = [16]byte{}
}
