// Package keycard drives the Status Keycard applet: pairing, the
// ECDH-based secure channel, PIN management and key operations.
//
// Unlike SCP02, the Keycard secure channel encrypts every command and
// response with AES-256-CBC and chains a 16-byte MAC through the
// session: the MAC of each APDU becomes the IV of the next one. The
// channel is established against a pairing slot previously provisioned
// with PAIR, using an ephemeral ECDH key agreement on secp256k1.
package keycard

// AID is the instance AID of the Keycard applet.
var AID = []byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x01}

// CashAID is the instance AID of the cash applet shipped alongside it.
var CashAID = []byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x03}

// Class byte used by all proprietary Keycard commands.
const CLA_KEYCARD byte = 0x80

// Instructions.
const (
	INS_INIT                  byte = 0xFE
	INS_FACTORY_RESET         byte = 0xFD
	INS_OPEN_SECURE_CHANNEL   byte = 0x10
	INS_MUTUALLY_AUTHENTICATE byte = 0x11
	INS_PAIR                  byte = 0x12
	INS_UNPAIR                byte = 0x13
	INS_IDENT                 byte = 0x14
	INS_VERIFY_PIN            byte = 0x20
	INS_CHANGE_PIN            byte = 0x21
	INS_UNBLOCK_PIN           byte = 0x22
	INS_LOAD_KEY              byte = 0xD0
	INS_DERIVE_KEY            byte = 0xD1
	INS_GENERATE_MNEMONIC     byte = 0xD2
	INS_REMOVE_KEY            byte = 0xD3
	INS_GENERATE_KEY          byte = 0xD4
	INS_SIGN                  byte = 0xC0
	INS_SET_PINLESS_PATH      byte = 0xC1
	INS_EXPORT_KEY            byte = 0xC2
	INS_GET_DATA              byte = 0xCA
	INS_GET_STATUS            byte = 0xF2
	INS_STORE_DATA            byte = 0xE2
)

// Parameters.
const (
	P1_PAIR_FIRST_STEP byte = 0x00
	P1_PAIR_FINAL_STEP byte = 0x01

	P1_GET_STATUS_APPLICATION byte = 0x00
	P1_GET_STATUS_KEY_PATH    byte = 0x01

	P1_CHANGE_PIN            byte = 0x00
	P1_CHANGE_PUK            byte = 0x01
	P1_CHANGE_PAIRING_SECRET byte = 0x02

	P1_LOAD_KEY_ECC          byte = 0x01
	P1_LOAD_KEY_EXTENDED_ECC byte = 0x02
	P1_LOAD_KEY_SEED         byte = 0x03

	P1_SIGN_PINLESS byte = 0x03

	// FACTORY RESET carries a fixed magic in P1/P2 so that a stray
	// command cannot wipe the card.
	P1_FACTORY_RESET byte = 0xAA
	P2_FACTORY_RESET byte = 0x55
)

// BER-TLV tags used in Keycard responses.
const (
	TAG_TEMPLATE_SIGNATURE          byte = 0xA0
	TAG_TEMPLATE_KEYPAIR            byte = 0xA1
	TAG_TEMPLATE_APPLICATION_STATUS byte = 0xA3
	TAG_TEMPLATE_APPLICATION_INFO   byte = 0xA4

	TAG_INSTANCE_UID    byte = 0x8F
	TAG_ECC_PUBLIC_KEY  byte = 0x80
	TAG_ECC_PRIVATE_KEY byte = 0x81
	TAG_CHAIN_CODE      byte = 0x82
	TAG_OTHER           byte = 0x02
	TAG_KEY_UID         byte = 0x8E
	TAG_CAPABILITIES    byte = 0x8D
	TAG_CERTIFICATE     byte = 0x8A
	TAG_ECDSA_SIGNATURE byte = 0x30
	TAG_KEY_INITIALIZED byte = 0x01
)

// KeySource selects which key a derivation path starts from.
type KeySource byte

const (
	SourceMaster  KeySource = 0x00
	SourceParent  KeySource = 0x40
	SourceCurrent KeySource = 0x80
)

// P1 derivation bits combined with the KeySource for SIGN and EXPORT KEY.
const (
	deriveTemporary  byte = 0x01
	derivePersistent byte = 0x02
)

// ExportOption selects what EXPORT KEY returns in P2.
type ExportOption byte

const (
	ExportPrivateAndPublic ExportOption = 0x00
	ExportPublicOnly       ExportOption = 0x01
	ExportExtendedPublic   ExportOption = 0x02
)

// PersistentRecord selects a STORE DATA / GET DATA slot.
type PersistentRecord byte

const (
	RecordPublic   PersistentRecord = 0x00
	RecordNDEF     PersistentRecord = 0x01
	RecordCashcard PersistentRecord = 0x02
)

// Capability flags advertised in the application info template.
type Capability byte

const (
	CapSecureChannel         Capability = 0x01
	CapKeyManagement         Capability = 0x02
	CapCredentialsManagement Capability = 0x04
	CapNDEF                  Capability = 0x08
)
