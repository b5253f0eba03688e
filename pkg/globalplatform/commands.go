package globalplatform

import (
	"fmt"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/tlv"
)

// Command builders and their status-word rule tables. Builders only
// assemble bytes; security requirements ride on the command and are
// enforced by the executor.

// NewSelect builds SELECT by name for the given AID. An empty AID
// selects the default application (the Issuer Security Domain).
func NewSelect(aid []byte) *apdu.Command {
	return apdu.New(CLA_ISO7816, INS_SELECT, P1_SELECT_BY_NAME, 0x00).
		WithData(aid).
		WithLe(0)
}

// SelectResolver yields the raw FCI template.
var SelectResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_FILE_NOT_FOUND), Handle: apdu.Fail[[]byte]("application not found")},
	{Pattern: apdu.Status(apdu.SW_WARN_FILE_DEACTIVATED), Handle: apdu.Fail[[]byte]("card is locked")},
}

// InitializeUpdateData is the successful INITIALIZE UPDATE payload.
type InitializeUpdateData struct {
	KeyDiversificationData [10]byte
	KeyInfo                [2]byte // key version, SCP version
	SequenceCounter        [2]byte
	CardChallenge          [6]byte
	CardCryptogram         [8]byte
}

// NewInitializeUpdate builds INITIALIZE UPDATE with a host challenge.
func NewInitializeUpdate(hostChallenge [8]byte) *apdu.Command {
	return apdu.New(CLA_GP, INS_INITIALIZE_UPDATE, 0x00, 0x00).
		WithData(hostChallenge[:]).
		WithLe(0)
}

// InitializeUpdateResolver parses the fixed 28-byte response layout.
var InitializeUpdateResolver = apdu.Resolver[*InitializeUpdateData]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) (*InitializeUpdateData, error) {
		if len(payload) != 28 {
			return nil, fmt.Errorf("globalplatform: INITIALIZE UPDATE response is %d bytes, want 28", len(payload))
		}
		var data InitializeUpdateData
		copy(data.KeyDiversificationData[:], payload[0:10])
		copy(data.KeyInfo[:], payload[10:12])
		copy(data.SequenceCounter[:], payload[12:14])
		copy(data.CardChallenge[:], payload[14:20])
		copy(data.CardCryptogram[:], payload[20:28])
		return &data, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[*InitializeUpdateData]("security status not satisfied")},
	{Pattern: apdu.Status(apdu.SW_ERR_AUTH_METHOD_BLOCKED), Handle: apdu.Fail[*InitializeUpdateData]("authentication method blocked")},
}

// NewExternalAuthenticate builds EXTERNAL AUTHENTICATE carrying the
// host cryptogram. P1 encodes the requested session security level
// (C-MAC, optionally command encryption); the command itself must be
// MAC-wrapped before transmission.
func NewExternalAuthenticate(hostCryptogram [8]byte, p1 byte) *apdu.Command {
	return apdu.New(CLA_GP, INS_EXTERNAL_AUTHENTICATE, p1, 0x00).
		WithData(hostCryptogram[:])
}

// ExternalAuthenticateResolver accepts only success; 6300 is the
// card's way of rejecting the host cryptogram.
var ExternalAuthenticateResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(apdu.StatusWord, []byte) (struct{}, error) {
		return struct{}{}, nil
	}},
	{Pattern: apdu.Status(apdu.SW_WARN_NV_CHANGED_NO_INFO), Handle: apdu.Fail[struct{}]("host cryptogram rejected")},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[struct{}]("security status not satisfied")},
}

// NewDelete builds DELETE for the object identified by aid. With
// related true the card also removes dependent objects.
func NewDelete(aid []byte, related bool) *apdu.Command {
	p2 := byte(P2_DELETE_OBJECT)
	if related {
		p2 = P2_DELETE_OBJECT_AND_RELATED
	}

	data := make([]byte, 0, 2+len(aid))
	data = append(data, TAG_AID, byte(len(aid)))
	data = append(data, aid...)

	return apdu.New(CLA_GP, INS_DELETE, 0x00, p2).
		WithData(data).
		WithLe(0).
		Require(levelAuthMAC())
}

// DeleteResolver treats "not found" as its own declared failure so
// callers can ignore it when deleting defensively.
var DeleteResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(apdu.StatusWord, []byte) (struct{}, error) {
		return struct{}{}, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_REF_DATA_NOT_FOUND), Handle: apdu.Fail[struct{}]("referenced object not found")},
	{Pattern: apdu.Status(apdu.SW_ERR_COND_OF_USE_NOT_SAT), Handle: apdu.Fail[struct{}]("object cannot be deleted")},
}

// NewInstallForLoad announces an upcoming LOAD sequence for a package.
func NewInstallForLoad(packageAID, sdAID []byte) *apdu.Command {
	if len(sdAID) == 0 {
		sdAID = SecurityDomainAID
	}

	data := make([]byte, 0, 5+len(packageAID)+len(sdAID))
	data = append(data, byte(len(packageAID)))
	data = append(data, packageAID...)
	data = append(data, byte(len(sdAID)))
	data = append(data, sdAID...)
	// No load file data block hash, no parameters, no token.
	data = append(data, 0x00, 0x00, 0x00)

	return apdu.New(CLA_GP, INS_INSTALL, P1_INSTALL_FOR_LOAD, 0x00).
		WithData(data).
		WithLe(0).
		Require(levelAuthMAC())
}

// NewInstallForInstall instantiates an applet from a loaded package
// and optionally makes it selectable. params are the C9 application
// install parameters; empty params become the mandatory C9 00.
func NewInstallForInstall(packageAID, moduleAID, instanceAID, params []byte, makeSelectable bool) *apdu.Command {
	p1 := byte(P1_INSTALL_FOR_INSTALL)
	if makeSelectable {
		p1 |= P1_INSTALL_FOR_MAKE_SELECTABLE
	}

	if len(params) == 0 {
		params = []byte{0xC9, 0x00}
	} else if params[0] != 0xC9 {
		wrapped := make([]byte, 0, 2+len(params))
		wrapped = append(wrapped, 0xC9, byte(len(params)))
		wrapped = append(wrapped, params...)
		params = wrapped
	}

	privileges := []byte{0x00}

	data := make([]byte, 0, 6+len(packageAID)+len(moduleAID)+len(instanceAID)+len(privileges)+len(params))
	data = append(data, byte(len(packageAID)))
	data = append(data, packageAID...)
	data = append(data, byte(len(moduleAID)))
	data = append(data, moduleAID...)
	data = append(data, byte(len(instanceAID)))
	data = append(data, instanceAID...)
	data = append(data, byte(len(privileges)))
	data = append(data, privileges...)
	data = append(data, byte(len(params)))
	data = append(data, params...)
	data = append(data, 0x00) // no install token

	return apdu.New(CLA_GP, INS_INSTALL, p1, 0x00).
		WithData(data).
		WithLe(0).
		Require(levelAuthMAC())
}

// InstallResolver covers both INSTALL flavors.
var InstallResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(apdu.StatusWord, []byte) (struct{}, error) {
		return struct{}{}, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_NOT_ENOUGH_MEMORY), Handle: apdu.Fail[struct{}]("not enough memory on card")},
	{Pattern: apdu.Status(apdu.SW_ERR_FILE_ALREADY_EXISTS), Handle: apdu.Fail[struct{}]("object already exists")},
	{Pattern: apdu.Status(apdu.SW_ERR_REF_DATA_NOT_FOUND), Handle: apdu.Fail[struct{}]("referenced package or module not found")},
}

// NewLoad builds one LOAD block. P1 flags the last block, P2 is the
// zero-based block index.
func NewLoad(last bool, index byte, block []byte) *apdu.Command {
	p1 := byte(P1_LOAD_MORE_BLOCKS)
	if last {
		p1 = P1_LOAD_LAST_BLOCK
	}
	return apdu.New(CLA_GP, INS_LOAD, p1, index).
		WithData(block).
		WithLe(0).
		Require(levelAuthMAC())
}

// LoadResolver acknowledges one block.
var LoadResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(apdu.StatusWord, []byte) (struct{}, error) {
		return struct{}{}, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_NOT_ENOUGH_MEMORY), Handle: apdu.Fail[struct{}]("not enough memory on card")},
}

// NewPutKey builds PUT KEY. p1 is 0x00 for a new key version or the
// current version when replacing; p2 identifies the target version.
func NewPutKey(p1, keyVersion byte, keyData []byte) *apdu.Command {
	return apdu.New(CLA_GP, INS_PUT_KEY, p1, keyVersion).
		WithData(keyData).
		WithLe(0).
		Require(levelAuthMAC())
}

// PutKeyResolver yields the key check values returned by the card.
var PutKeyResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[[]byte]("incorrect key data")},
}

// NewStoreData builds one STORE DATA block for personalization.
func NewStoreData(last bool, blockNumber byte, data []byte) *apdu.Command {
	p1 := byte(0x00)
	if last {
		p1 = 0x80
	}
	return apdu.New(CLA_GP, INS_STORE_DATA, p1, blockNumber).
		WithData(data).
		Require(levelAuthMAC())
}

// StoreDataResolver acknowledges one block.
var StoreDataResolver = apdu.Resolver[struct{}]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(apdu.StatusWord, []byte) (struct{}, error) {
		return struct{}{}, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_INCORRECT_PARAMS_DATA), Handle: apdu.Fail[struct{}]("incorrect data")},
}

// NewGetStatus queries one registry scope, optionally filtered by AID
// prefix. An empty filter lists everything in the scope.
func NewGetStatus(p1 byte, aidFilter []byte) *apdu.Command {
	data := make([]byte, 0, 2+len(aidFilter))
	data = append(data, TAG_AID, byte(len(aidFilter)))
	data = append(data, aidFilter...)

	return apdu.New(CLA_GP, INS_GET_STATUS, p1, P2_STATUS_TLV_DATA).
		WithData(data).
		WithLe(0).
		Require(levelAuthMAC())
}

// GetStatusResolver yields the raw registry TLV data. An empty scope
// (6A88) resolves to no data rather than an error.
var GetStatusResolver = apdu.Resolver[[]byte]{
	{Pattern: apdu.Status(apdu.SW_NO_ERROR), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.AnySW2(0x61), Handle: func(_ apdu.StatusWord, payload []byte) ([]byte, error) {
		return payload, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_REF_DATA_NOT_FOUND), Handle: func(apdu.StatusWord, []byte) ([]byte, error) {
		return nil, nil
	}},
	{Pattern: apdu.Status(apdu.SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: apdu.Fail[[]byte]("security status not satisfied")},
}

// ApplicationEntry is one application or security domain in the card
// registry (tag E3).
type ApplicationEntry struct {
	AID        []byte `tlv:"4F"`
	Lifecycle  []byte `tlv:"C5"`
	Privileges []byte `tlv:"C6"`
}

// LoadFileEntry is one executable load file in the registry (tag E2),
// with the AIDs of the modules it contains.
type LoadFileEntry struct {
	AID       []byte   `tlv:"4F"`
	Lifecycle []byte   `tlv:"C5"`
	Modules   [][]byte `tlv:"84"`
}

// ParseApplications decodes a GET STATUS applications payload.
func ParseApplications(data []byte) ([]ApplicationEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var registry struct {
		Entries []ApplicationEntry `tlv:"E3"`
	}
	if err := tlv.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("globalplatform: parsing application registry: %w", err)
	}
	return registry.Entries, nil
}

// ParseLoadFiles decodes a GET STATUS executable load files payload.
func ParseLoadFiles(data []byte) ([]LoadFileEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var registry struct {
		Entries []LoadFileEntry `tlv:"E2"`
	}
	if err := tlv.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("globalplatform: parsing load file registry: %w", err)
	}
	return registry.Entries, nil
}
