package keycard

import (
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/moov-io/bertlv"

	"github.com/cardium/cardium/pkg/apdu"
)

// Command builders and their status-word rule tables, one family per
// applet instruction. Builders assemble bytes and declare the security
// level the command needs; the executor upgrades the channel before
// anything leaves the host.

func okHandler(apdu.StatusWord, []byte) (struct{}, error) {
	return struct{}{}, nil
}

// NewSelect builds SELECT by AID. An empty AID selects the Keycard
// applet instance.
func NewSelect(aid []byte) *apdu.Command {
	if len(aid) == 0 {
		aid = AID
	}
	return apdu.New(0x00, 0xA4, 0x04, 0x00).
		WithData(aid).
		WithLe(0)
}

// SelectResolver yields the raw SELECT template for ParseSelect.
var SelectResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_FILE_NOT_FOUND), Handle: apdu.Fail[[]byte]("applet not found")},
}

// NewInit builds INIT, delivering the initial PIN, PUK and pairing
// secret encrypted against the card key of a factory-fresh card.
func NewInit(cardKey *secp256k1.PublicKey, random io.Reader, pin, puk string, pairingSecret Key) (*apdu.Command, error) {
	payload := make([]byte, 0, len(pin)+len(puk)+len(pairingSecret))
	payload = append(payload, pin...)
	payload = append(payload, puk...)
	payload = append(payload, pairingSecret[:]...)

	data, err := oneShotEncrypt(cardKey, random, payload)
	if err != nil {
		return nil, err
	}
	return apdu.New(CLA_KEYCARD, INS_INIT, 0x00, 0x00).WithData(data), nil
}

// InitResolver accepts only success; an initialized card answers 6D00.
var InitResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_INS_INVALID), Handle: apdu.Fail[struct{}]("card is already initialized")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}]("invalid initialization data")},
}

// ChannelParams is the successful OPEN SECURE CHANNEL payload: the key
// derivation challenge and the initial IV.
type ChannelParams struct {
	Challenge [32]byte
	IV        [16]byte
}

// NewOpenSecureChannel builds OPEN SECURE CHANNEL for a pairing slot,
// carrying the host's uncompressed ephemeral public key.
func NewOpenSecureChannel(pairingIndex byte, publicKey []byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_OPEN_SECURE_CHANNEL, pairingIndex, 0x00).
		WithData(publicKey).
		WithLe(0)
}

// OpenSecureChannelResolver parses the fixed 48-byte response.
var OpenSecureChannelResolver = apdu.Resolver[*ChannelParams]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*ChannelParams, error) {
		if len(payload) != 48 {
			return nil, &ParseError{Reason: "OPEN SECURE CHANNEL response is not 48 bytes"}
		}
		params := &ChannelParams{}
		copy(params.Challenge[:], payload[:32])
		copy(params.IV[:], payload[32:])
		return params, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[*ChannelParams]("invalid pairing index")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[*ChannelParams]("data is not a public key")},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[*ChannelParams]("MAC verification failed")},
}

// NewMutuallyAuthenticate builds MUTUALLY AUTHENTICATE with a host
// challenge. It must travel through the freshly opened channel.
func NewMutuallyAuthenticate(challenge [32]byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_MUTUALLY_AUTHENTICATE, 0x00, 0x00).
		WithData(challenge[:]).
		WithLe(0)
}

// MutuallyAuthenticateResolver yields the card's response challenge.
var MutuallyAuthenticateResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		if len(payload) != 32 {
			return nil, &ParseError{Reason: "MUTUALLY AUTHENTICATE response is not 32 bytes"}
		}
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[[]byte]("previous command was not OPEN SECURE CHANNEL")},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[[]byte]("cryptogram verification failed")},
}

// PairChallenge is the first-stage PAIR response.
type PairChallenge struct {
	Cryptogram [32]byte
	Challenge  [32]byte
}

// PairIndex is the final-stage PAIR response.
type PairIndex struct {
	Index byte
	Salt  [32]byte
}

// NewPairFirst builds the first PAIR step with a host challenge.
func NewPairFirst(challenge [32]byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_PAIR, P1_PAIR_FIRST_STEP, 0x00).
		WithData(challenge[:])
}

// NewPairFinal builds the final PAIR step with the host cryptogram.
func NewPairFinal(cryptogram [32]byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_PAIR, P1_PAIR_FINAL_STEP, 0x00).
		WithData(cryptogram[:])
}

// PairFirstResolver parses card cryptogram and card challenge.
var PairFirstResolver = apdu.Resolver[*PairChallenge]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*PairChallenge, error) {
		if len(payload) != 64 {
			return nil, &ParseError{Reason: "PAIR first stage response is not 64 bytes"}
		}
		out := &PairChallenge{}
		copy(out.Cryptogram[:], payload[:32])
		copy(out.Challenge[:], payload[32:])
		return out, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[*PairChallenge]("client cryptogram verification failed")},
	{Pattern: apdu.Status(apdu.SW_ERR_NOT_ENOUGH_MEMORY), Handle: apdu.Fail[*PairChallenge]("all pairing slots are taken")},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[*PairChallenge]("secure channel is open")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[*PairChallenge]("wrong data")},
}

// PairFinalResolver parses the assigned slot index and salt.
var PairFinalResolver = apdu.Resolver[*PairIndex]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*PairIndex, error) {
		if len(payload) != 33 {
			return nil, &ParseError{Reason: "PAIR final stage response is not 33 bytes"}
		}
		out := &PairIndex{Index: payload[0]}
		copy(out.Salt[:], payload[1:])
		return out, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[*PairIndex]("client cryptogram verification failed")},
	{Pattern: apdu.Status(apdu.SW_ERR_NOT_ENOUGH_MEMORY), Handle: apdu.Fail[*PairIndex]("all pairing slots are taken")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[*PairIndex]("first stage was not completed")},
}

// NewUnpair builds UNPAIR for a pairing slot.
func NewUnpair(index byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_UNPAIR, index, 0x00).
		Require(apdu.LevelAuthMAC())
}

// UnpairResolver accepts only success.
var UnpairResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[struct{}]("security status not satisfied")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[struct{}]("pairing index out of range")},
}

// NewGetStatus builds GET STATUS for the application or key path view.
func NewGetStatus(p1 byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_GET_STATUS, p1, 0x00).
		WithLe(0).
		Require(apdu.LevelMAC())
}

// GetStatusResolver yields the raw payload; the two views share one
// instruction and are told apart by the caller.
var GetStatusResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[[]byte]("undefined P1")},
}

// NewVerifyPIN builds VERIFY PIN.
func NewVerifyPIN(pin string) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_VERIFY_PIN, 0x00, 0x00).
		WithData([]byte(pin)).
		Require(apdu.LevelEncMAC())
}

// pinResolver accepts success and converts the 63CX counter into a
// PINError carrying the remaining attempts.
func pinResolver(wrongData string) apdu.Resolver[struct{}] {
	return apdu.Resolver[struct{}]{
		{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
		{Pattern: apdu.AnySW2(0x63), Handle: func(sw apdu.StatusWord, _ []byte) (struct{}, error) {
			if sw.IsCounter() {
				return struct{}{}, &PINError{Remaining: int(sw.Counter())}
			}
			return struct{}{}, &apdu.StatusError{SW: sw, Message: wrongData}
		}},
		{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[struct{}]("security status not satisfied")},
		{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[struct{}]("conditions of use not satisfied")},
		{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}](wrongData)},
		{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[struct{}]("incorrect P1/P2")},
	}
}

// VerifyPINResolver reports remaining attempts through PINError.
var VerifyPINResolver = pinResolver("wrong PIN format")

// NewChangePIN builds CHANGE PIN with a new PIN.
func NewChangePIN(pin string) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_CHANGE_PIN, P1_CHANGE_PIN, 0x00).
		WithData([]byte(pin)).
		Require(apdu.LevelFull())
}

// NewChangePUK builds CHANGE PIN targeting the PUK.
func NewChangePUK(puk string) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_CHANGE_PIN, P1_CHANGE_PUK, 0x00).
		WithData([]byte(puk)).
		Require(apdu.LevelFull())
}

// NewChangePairingSecret builds CHANGE PIN targeting the pairing
// secret; the password is stretched into a token first.
func NewChangePairingSecret(password string) *apdu.Command {
	token := GeneratePairingToken(password)
	return apdu.New(CLA_KEYCARD, INS_CHANGE_PIN, P1_CHANGE_PAIRING_SECRET, 0x00).
		WithData(token[:]).
		Require(apdu.LevelFull())
}

// ChangePINResolver covers all three CHANGE PIN targets.
var ChangePINResolver = pinResolver("wrong credential format")

// NewUnblockPIN builds UNBLOCK PIN with the PUK and the new PIN.
func NewUnblockPIN(puk, newPIN string) *apdu.Command {
	data := make([]byte, 0, len(puk)+len(newPIN))
	data = append(data, puk...)
	data = append(data, newPIN...)
	return apdu.New(CLA_KEYCARD, INS_UNBLOCK_PIN, 0x00, 0x00).
		WithData(data).
		Require(apdu.LevelEncMAC())
}

// UnblockPINResolver reports remaining PUK attempts through PINError.
var UnblockPINResolver = pinResolver("wrong PUK format")

// NewGenerateKey builds GENERATE KEY.
func NewGenerateKey() *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_GENERATE_KEY, 0x00, 0x00).
		Require(apdu.LevelAuthMAC())
}

// keyUIDResolver parses a 32-byte key UID, shared by GENERATE KEY and
// LOAD KEY.
func keyUIDResolver() apdu.Resolver[[]byte] {
	return apdu.Resolver[[]byte]{
		{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
			if len(payload) != 32 {
				return nil, &ParseError{Reason: "key UID is not 32 bytes"}
			}
			return payload, nil
		}},
		{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[[]byte]("secure channel required")},
		{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[[]byte]("PIN is not verified")},
		{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[[]byte]("invalid key data")},
		{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[[]byte]("invalid P1")},
	}
}

// GenerateKeyResolver yields the UID of the generated master key.
var GenerateKeyResolver = keyUIDResolver()

// LoadKeyResolver yields the UID of the loaded key.
var LoadKeyResolver = keyUIDResolver()

// NewGenerateMnemonic builds GENERATE MNEMONIC. words must be a
// multiple of 3 between 12 and 24; P1 carries the checksum length.
func NewGenerateMnemonic(words int) (*apdu.Command, error) {
	switch words {
	case 12, 15, 18, 21, 24:
	default:
		return nil, &ParseError{Reason: "mnemonic length must be 12, 15, 18, 21 or 24 words"}
	}
	return apdu.New(CLA_KEYCARD, INS_GENERATE_MNEMONIC, byte(words/3), 0x00).
		WithLe(0), nil
}

// GenerateMnemonicResolver yields the raw index sequence for
// MnemonicIndexes.
var GenerateMnemonicResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[[]byte]("invalid checksum length")},
}

// NewLoadKeypair builds LOAD KEY for a plain or extended secp256k1
// keypair. The public key may be nil; the card recomputes it. A
// non-nil chainCode loads an extended key.
func NewLoadKeypair(privateKey, publicKey, chainCode []byte) (*apdu.Command, error) {
	if len(privateKey) != 32 {
		return nil, &ParseError{Reason: "private key is not 32 bytes"}
	}

	children := []bertlv.TLV{bertlv.NewTag(tagHex(TAG_ECC_PRIVATE_KEY), privateKey)}
	if len(publicKey) > 0 {
		children = append([]bertlv.TLV{bertlv.NewTag(tagHex(TAG_ECC_PUBLIC_KEY), publicKey)}, children...)
	}

	p1 := P1_LOAD_KEY_ECC
	if len(chainCode) > 0 {
		if len(chainCode) != 32 {
			return nil, &ParseError{Reason: "chain code is not 32 bytes"}
		}
		p1 = P1_LOAD_KEY_EXTENDED_ECC
		children = append(children, bertlv.NewTag(tagHex(TAG_CHAIN_CODE), chainCode))
	}

	data, err := bertlv.Encode([]bertlv.TLV{bertlv.NewComposite(tagHex(TAG_TEMPLATE_KEYPAIR), children...)})
	if err != nil {
		return nil, err
	}

	return apdu.New(CLA_KEYCARD, INS_LOAD_KEY, p1, 0x00).
		WithData(data).
		WithLe(0).
		Require(apdu.LevelFull()), nil
}

// NewLoadSeed builds LOAD KEY for a 64-byte BIP39 seed.
func NewLoadSeed(seed []byte) (*apdu.Command, error) {
	if len(seed) != 64 {
		return nil, &ParseError{Reason: "seed is not 64 bytes"}
	}
	return apdu.New(CLA_KEYCARD, INS_LOAD_KEY, P1_LOAD_KEY_SEED, 0x00).
		WithData(seed).
		WithLe(0).
		Require(apdu.LevelFull()), nil
}

// NewRemoveKey builds REMOVE KEY, wiping the wallet key.
func NewRemoveKey() *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_REMOVE_KEY, 0x00, 0x00).
		Require(apdu.LevelFull())
}

// RemoveKeyResolver accepts only success.
var RemoveKeyResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[struct{}]("PIN is not verified")},
}

// NewDeriveKey builds DERIVE KEY, making the path the active key.
func NewDeriveKey(path *KeyPath) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_DERIVE_KEY, byte(path.Source), 0x00).
		WithData(path.Encode()).
		Require(apdu.LevelMAC())
}

// DeriveKeyResolver accepts only success.
var DeriveKeyResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[struct{}]("conditions of use not satisfied")},
	{Pattern: apdu.Status(apdu.SW_ERR_WRONG_P1P2), Handle: apdu.Fail[struct{}]("invalid derivation source")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}]("invalid derivation sequence")},
}

// signP1 folds an optional derivation into P1: the source bits plus
// the temporary/persistent derive flag.
func signP1(path *KeyPath, makeCurrent bool) (byte, []byte) {
	if path == nil {
		return 0x00, nil
	}
	mode := deriveTemporary
	if makeCurrent {
		mode = derivePersistent
	}
	return byte(path.Source) | mode, path.Encode()
}

// NewSign builds SIGN over a 32-byte hash, optionally deriving the
// signing key from a path first.
func NewSign(hash [32]byte, path *KeyPath, makeCurrent bool) *apdu.Command {
	p1, pathData := signP1(path, makeCurrent)

	data := make([]byte, 0, len(hash)+len(pathData))
	data = append(data, hash[:]...)
	data = append(data, pathData...)

	return apdu.New(CLA_KEYCARD, INS_SIGN, p1, 0x00).
		WithData(data).
		WithLe(0).
		Require(apdu.LevelEncMAC())
}

// NewSignPinless builds SIGN against the pinless path. It works
// without a secure channel, by design of the applet.
func NewSignPinless(hash [32]byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_SIGN, P1_SIGN_PINLESS, 0x00).
		WithData(hash[:]).
		WithLe(0)
}

// SignResolver parses the signature template.
var SignResolver = apdu.Resolver[*Signature]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*Signature, error) {
		return ParseSignature(payload)
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[*Signature]("secure channel and verified PIN required")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[*Signature]("hash is not 32 bytes")},
	{Pattern: apdu.Status(apdu.SW_ERR_REF_DATA_NOT_FOUND), Handle: apdu.Fail[*Signature]("pinless path not set")},
}

// IdentResolver parses the identity signature template.
var IdentResolver = apdu.Resolver[*Signature]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*Signature, error) {
		return ParseSignature(payload)
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[*Signature]("wrong data")},
}

// NewIdent builds IDENT, proving possession of the factory identity
// key over a host challenge. It needs no pairing or channel.
func NewIdent(challenge [32]byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_IDENT, 0x00, 0x00).
		WithData(challenge[:]).
		WithLe(0)
}

// NewSetPinlessPath builds SET PINLESS PATH. An empty path clears it.
func NewSetPinlessPath(path *KeyPath) *apdu.Command {
	var data []byte
	if path != nil {
		data = path.Encode()
	}
	return apdu.New(CLA_KEYCARD, INS_SET_PINLESS_PATH, 0x00, 0x00).
		WithData(data).
		Require(apdu.LevelFull())
}

// SetPinlessPathResolver accepts only success.
var SetPinlessPathResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}]("invalid derivation sequence")},
}

// NewExportKey builds EXPORT KEY. A nil path exports the current key;
// otherwise the card derives the path first, persisting it when
// makeCurrent is set.
func NewExportKey(option ExportOption, path *KeyPath, makeCurrent bool) *apdu.Command {
	p1, pathData := signP1(path, makeCurrent)
	return apdu.New(CLA_KEYCARD, INS_EXPORT_KEY, p1, byte(option)).
		WithData(pathData).
		WithLe(0).
		Require(apdu.LevelFull())
}

// ExportKeyResolver parses the keypair template.
var ExportKeyResolver = apdu.Resolver[*Keypair]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*Keypair, error) {
		return ParseKeypair(payload)
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[*Keypair]("secure channel and verified PIN required")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[*Keypair]("invalid export option")},
}

// NewStoreData builds STORE DATA for a persistent record.
func NewStoreData(record PersistentRecord, data []byte) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_STORE_DATA, byte(record), 0x00).
		WithData(data).
		Require(apdu.LevelAuthMAC())
}

// StoreDataResolver accepts only success.
var StoreDataResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[struct{}]("conditions of use not satisfied")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[struct{}]("invalid record")},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}]("data too long")},
}

// NewGetData builds GET DATA for a persistent record. Public records
// are readable without a channel.
func NewGetData(record PersistentRecord) *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_GET_DATA, byte(record), 0x00).
		WithLe(0)
}

// GetDataResolver yields the stored record.
var GetDataResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_P1P2), Handle: apdu.Fail[[]byte]("invalid record")},
}

// NewFactoryReset builds FACTORY RESET. Irreversible; the P1/P2 magic
// is the only safeguard.
func NewFactoryReset() *apdu.Command {
	return apdu.New(CLA_KEYCARD, INS_FACTORY_RESET, P1_FACTORY_RESET, P2_FACTORY_RESET)
}

// FactoryResetResolver accepts only success.
var FactoryResetResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: okHandler},
}
