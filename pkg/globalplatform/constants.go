// Package globalplatform implements the GlobalPlatform card management
// protocol over an SCP02 secure channel: session key derivation, command
// MAC wrapping, the card content management commands (DELETE, INSTALL,
// LOAD, GET STATUS, PUT KEY, STORE DATA) and CAP file loading.
package globalplatform

import "github.com/cardium/cardium/pkg/apdu"

// Class bytes.
const (
	CLA_ISO7816 = 0x00
	CLA_GP      = 0x80
	CLA_MAC     = 0x84 // CLA_GP with the secure messaging bit
)

// Instruction bytes.
const (
	INS_SELECT                = 0xA4
	INS_INITIALIZE_UPDATE     = 0x50
	INS_EXTERNAL_AUTHENTICATE = 0x82
	INS_GET_RESPONSE          = 0xC0
	INS_DELETE                = 0xE4
	INS_LOAD                  = 0xE8
	INS_INSTALL               = 0xE6
	INS_GET_STATUS            = 0xF2
	INS_PUT_KEY               = 0xD8
	INS_STORE_DATA            = 0xE2
)

// SELECT P1.
const P1_SELECT_BY_NAME = 0x04

// EXTERNAL AUTHENTICATE P1: requested session security level.
const (
	P1_AUTH_CMAC = 0x01
	P1_AUTH_ENC  = 0x20
)

// INSTALL P1.
const (
	P1_INSTALL_FOR_LOAD            = 0x02
	P1_INSTALL_FOR_INSTALL         = 0x04
	P1_INSTALL_FOR_MAKE_SELECTABLE = 0x08
	P1_INSTALL_FOR_PERSONALIZATION = 0x20
)

// LOAD P1.
const (
	P1_LOAD_MORE_BLOCKS = 0x00
	P1_LOAD_LAST_BLOCK  = 0x80
)

// GET STATUS P1 (registry scope) and P2.
const (
	P1_STATUS_ISSUER_SECURITY_DOMAIN = 0x80
	P1_STATUS_APPLICATIONS           = 0x40
	P1_STATUS_EXEC_LOAD_FILES        = 0x20

	P2_STATUS_TLV_DATA = 0x02
)

// DELETE P2.
const (
	P2_DELETE_OBJECT             = 0x00
	P2_DELETE_OBJECT_AND_RELATED = 0x80
)

// TLV tags used by card content management.
const (
	TAG_AID                  = 0x4F
	TAG_LOAD_FILE_DATA_BLOCK = 0xC4
)

// Supported SCP version reported in the INITIALIZE UPDATE key info.
const SCP02 = 0x02

// SecurityDomainAID is the default Issuer Security Domain.
var SecurityDomainAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x00, 0x00, 0x00}

// levelAuthMAC is what an SCP02 channel provides after EXTERNAL
// AUTHENTICATE with C-MAC.
func levelAuthMAC() apdu.SecurityLevel {
	return apdu.LevelAuthMAC()
}
