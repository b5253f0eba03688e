package keycard

import (
	"crypto/rand"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/card"
)

// Keycard drives one applet instance through an executor. Select must
// run first; it learns the card's secure channel public key, which
// pairing and channel establishment both need. Commands that require
// protection trigger the channel handshake on first use, provided
// pairing credentials are installed.
type Keycard struct {
	exec    *card.Executor
	cardKey *secp256k1.PublicKey
	info    *ApplicationInfo

	// Rand sources challenges and ephemeral keys; nil means
	// crypto/rand.
	Rand io.Reader
}

// New attaches the Keycard application to an executor.
func New(exec *card.Executor) *Keycard {
	return &Keycard{exec: exec}
}

func (k *Keycard) random() io.Reader {
	if k.Rand != nil {
		return k.Rand
	}
	return rand.Reader
}

// ApplicationInfo returns the template captured by the last Select.
func (k *Keycard) ApplicationInfo() *ApplicationInfo {
	return k.info
}

// Select selects the applet and captures its card key and application
// info for later pairing and channel establishment.
func (k *Keycard) Select() (*SelectResult, error) {
	fci, err := card.Execute(k.exec, NewSelect(nil), SelectResolver)
	if err != nil {
		return nil, err
	}

	result, err := ParseSelect(fci)
	if err != nil {
		return nil, err
	}

	var rawKey []byte
	if result.Initialized() {
		k.info = result.Info
		rawKey = result.Info.PublicKey
	} else {
		rawKey = result.PreInitKey
	}

	if len(rawKey) > 0 {
		pub, err := secp256k1.ParsePubKey(rawKey)
		if err != nil {
			return nil, &ParseError{Reason: "card public key is not on secp256k1"}
		}
		k.cardKey = pub
	}
	return result, nil
}

// Init initializes a factory-fresh card with its PIN, PUK and pairing
// password. The card must have been selected and be uninitialized.
func (k *Keycard) Init(pin, puk, pairingPassword string) error {
	if k.cardKey == nil {
		return &ParseError{Reason: "card key unknown, select the applet first"}
	}

	cmd, err := NewInit(k.cardKey, k.random(), pin, puk, GeneratePairingToken(pairingPassword))
	if err != nil {
		return err
	}
	_, err = card.Execute(k.exec, cmd, InitResolver)
	return err
}

// Pair claims a pairing slot using the pairing password. On success
// the pairing is installed on the executor as the secure channel
// provider and returned for persistence; the card proves knowledge of
// the shared token before the host reveals its own proof.
func (k *Keycard) Pair(pairingPassword string) (*PairingInfo, error) {
	token := GeneratePairingToken(pairingPassword)

	var challenge [32]byte
	if _, err := io.ReadFull(k.random(), challenge[:]); err != nil {
		return nil, err
	}

	first, err := card.Execute(k.exec, NewPairFirst(challenge), PairFirstResolver)
	if err != nil {
		return nil, err
	}
	if first.Cryptogram != calculateCryptogram(token, challenge) {
		return nil, &card.AuthError{Reason: "card cryptogram mismatch"}
	}

	final, err := card.Execute(k.exec, NewPairFinal(calculateCryptogram(token, first.Challenge)), PairFinalResolver)
	if err != nil {
		return nil, err
	}

	pairing := &PairingInfo{Index: final.Index}
	pairing.Key = calculateCryptogram(token, final.Salt)

	k.SetPairing(*pairing)
	return pairing, nil
}

// SetPairing installs previously persisted pairing credentials as the
// executor's secure channel provider.
func (k *Keycard) SetPairing(pairing PairingInfo) {
	provider := NewProvider(pairing, k.cardKey)
	provider.Rand = k.Rand
	k.exec.SetProvider(provider)
}

// OpenSecureChannel forces the handshake now instead of on the first
// protected command.
func (k *Keycard) OpenSecureChannel() error {
	return k.exec.OpenSecureChannel(apdu.LevelEncMAC())
}

// Unpair releases a pairing slot.
func (k *Keycard) Unpair(index byte) error {
	_, err := card.Execute(k.exec, NewUnpair(index), UnpairResolver)
	return err
}

// VerifyPIN proves PIN possession, raising the channel to full
// protection on success.
func (k *Keycard) VerifyPIN(pin string) error {
	if _, err := card.Execute(k.exec, NewVerifyPIN(pin), VerifyPINResolver); err != nil {
		return err
	}
	if ch, ok := k.exec.SecureChannel().(*SecureChannel); ok {
		ch.markAuthenticated()
	}
	return nil
}

// ChangePIN sets a new PIN.
func (k *Keycard) ChangePIN(pin string) error {
	_, err := card.Execute(k.exec, NewChangePIN(pin), ChangePINResolver)
	return err
}

// ChangePUK sets a new PUK.
func (k *Keycard) ChangePUK(puk string) error {
	_, err := card.Execute(k.exec, NewChangePUK(puk), ChangePINResolver)
	return err
}

// ChangePairingSecret replaces the pairing password. Existing
// pairings stay valid; only new PAIR runs use the new secret.
func (k *Keycard) ChangePairingSecret(password string) error {
	_, err := card.Execute(k.exec, NewChangePairingSecret(password), ChangePINResolver)
	return err
}

// UnblockPIN resets a blocked PIN using the PUK.
func (k *Keycard) UnblockPIN(puk, newPIN string) error {
	_, err := card.Execute(k.exec, NewUnblockPIN(puk, newPIN), UnblockPINResolver)
	return err
}

// GetStatus reads the application status: retry counters and whether a
// wallet key is loaded.
func (k *Keycard) GetStatus() (*ApplicationStatus, error) {
	data, err := card.Execute(k.exec, NewGetStatus(P1_GET_STATUS_APPLICATION), GetStatusResolver)
	if err != nil {
		return nil, err
	}
	return ParseApplicationStatus(data)
}

// GetKeyPath reads the derivation path of the active key.
func (k *Keycard) GetKeyPath() (*KeyPath, error) {
	data, err := card.Execute(k.exec, NewGetStatus(P1_GET_STATUS_KEY_PATH), GetStatusResolver)
	if err != nil {
		return nil, err
	}
	return ParseKeyPathStatus(data)
}

// GenerateKey creates a new master key on the card and returns its
// UID.
func (k *Keycard) GenerateKey() ([]byte, error) {
	return card.Execute(k.exec, NewGenerateKey(), GenerateKeyResolver)
}

// GenerateMnemonic asks the card for BIP39 word indexes of the given
// mnemonic length.
func (k *Keycard) GenerateMnemonic(words int) ([]int, error) {
	cmd, err := NewGenerateMnemonic(words)
	if err != nil {
		return nil, err
	}
	data, err := card.Execute(k.exec, cmd, GenerateMnemonicResolver)
	if err != nil {
		return nil, err
	}
	return MnemonicIndexes(data)
}

// LoadKeypair loads a secp256k1 keypair, extended when chainCode is
// present, and returns the key UID.
func (k *Keycard) LoadKeypair(privateKey, publicKey, chainCode []byte) ([]byte, error) {
	cmd, err := NewLoadKeypair(privateKey, publicKey, chainCode)
	if err != nil {
		return nil, err
	}
	return card.Execute(k.exec, cmd, LoadKeyResolver)
}

// LoadSeed loads a 64-byte BIP39 seed and returns the key UID.
func (k *Keycard) LoadSeed(seed []byte) ([]byte, error) {
	cmd, err := NewLoadSeed(seed)
	if err != nil {
		return nil, err
	}
	return card.Execute(k.exec, cmd, LoadKeyResolver)
}

// RemoveKey wipes the wallet key from the card.
func (k *Keycard) RemoveKey() error {
	_, err := card.Execute(k.exec, NewRemoveKey(), RemoveKeyResolver)
	return err
}

// DeriveKey makes the given path the card's active key.
func (k *Keycard) DeriveKey(path string) error {
	kp, err := ParsePath(path)
	if err != nil {
		return err
	}
	_, err = card.Execute(k.exec, NewDeriveKey(kp), DeriveKeyResolver)
	return err
}

// Sign signs a 32-byte hash with the active key.
func (k *Keycard) Sign(hash [32]byte) (*Signature, error) {
	return card.Execute(k.exec, NewSign(hash, nil, false), SignResolver)
}

// SignWithPath signs with the key at path, optionally making it the
// active key.
func (k *Keycard) SignWithPath(hash [32]byte, path string, makeCurrent bool) (*Signature, error) {
	kp, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return card.Execute(k.exec, NewSign(hash, kp, makeCurrent), SignResolver)
}

// SignPinless signs with the pinless path, outside any secure channel.
func (k *Keycard) SignPinless(hash [32]byte) (*Signature, error) {
	return card.Execute(k.exec, NewSignPinless(hash), SignResolver)
}

// SetPinlessPath nominates the path usable by SignPinless; empty
// clears it.
func (k *Keycard) SetPinlessPath(path string) error {
	var kp *KeyPath
	if path != "" {
		parsed, err := ParsePath(path)
		if err != nil {
			return err
		}
		kp = parsed
	}
	_, err := card.Execute(k.exec, NewSetPinlessPath(kp), SetPinlessPathResolver)
	return err
}

// ExportKey exports the current key under the given option.
func (k *Keycard) ExportKey(option ExportOption) (*Keypair, error) {
	return card.Execute(k.exec, NewExportKey(option, nil, false), ExportKeyResolver)
}

// ExportKeyWithPath derives and exports the key at path.
func (k *Keycard) ExportKeyWithPath(option ExportOption, path string, makeCurrent bool) (*Keypair, error) {
	kp, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return card.Execute(k.exec, NewExportKey(option, kp, makeCurrent), ExportKeyResolver)
}

// StoreData writes a persistent record.
func (k *Keycard) StoreData(record PersistentRecord, data []byte) error {
	_, err := card.Execute(k.exec, NewStoreData(record, data), StoreDataResolver)
	return err
}

// GetData reads a persistent record.
func (k *Keycard) GetData(record PersistentRecord) ([]byte, error) {
	return card.Execute(k.exec, NewGetData(record), GetDataResolver)
}

// Ident asks the card to sign a random challenge with its factory
// identity key.
func (k *Keycard) Ident() (*Signature, error) {
	var challenge [32]byte
	if _, err := io.ReadFull(k.random(), challenge[:]); err != nil {
		return nil, err
	}
	return card.Execute(k.exec, NewIdent(challenge), IdentResolver)
}

// FactoryReset wipes the card back to factory state. Irreversible.
func (k *Keycard) FactoryReset() error {
	_, err := card.Execute(k.exec, NewFactoryReset(), FactoryResetResolver)
	return err
}

// Level reports the security currently in force on the executor.
func (k *Keycard) Level() apdu.SecurityLevel {
	return k.exec.Level()
}
