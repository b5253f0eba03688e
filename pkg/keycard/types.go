package keycard

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/moov-io/bertlv"

	"github.com/cardium/cardium/pkg/tlv"
)

// PairingInfo identifies one pairing slot on a card: the derived
// pairing key and the slot index assigned by the card.
type PairingInfo struct {
	Key   Key
	Index byte
}

// Version is the applet version reported by SELECT.
type Version struct {
	Major byte
	Minor byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Capabilities is the capability bitmask reported by SELECT.
type Capabilities byte

// Has reports whether the card advertises the capability.
func (c Capabilities) Has(cap Capability) bool {
	return byte(c)&byte(cap) != 0
}

func (c Capabilities) String() string {
	var parts []string
	if c.Has(CapSecureChannel) {
		parts = append(parts, "secure channel")
	}
	if c.Has(CapKeyManagement) {
		parts = append(parts, "key management")
	}
	if c.Has(CapCredentialsManagement) {
		parts = append(parts, "credentials management")
	}
	if c.Has(CapNDEF) {
		parts = append(parts, "NDEF")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// ApplicationInfo is the template an initialized card returns to
// SELECT.
type ApplicationInfo struct {
	InstanceUID    []byte `tlv:"8F"`
	PublicKey      []byte `tlv:"80"`
	KeyUID         []byte `tlv:"8E"`
	Version        Version
	RemainingSlots byte
	Capabilities   Capabilities
}

// HasMasterKey reports whether a wallet key is present on the card.
func (a *ApplicationInfo) HasMasterKey() bool {
	return len(a.KeyUID) > 0
}

func (a *ApplicationInfo) Verbose() string {
	var sb strings.Builder
	tlv.WriteStructFields(&sb, "ApplicationInfo", a)
	sb.WriteString(fmt.Sprintf("\n    - ApplicationInfo.Version: %s", a.Version))
	sb.WriteString(fmt.Sprintf("\n    - ApplicationInfo.RemainingSlots: %d", a.RemainingSlots))
	sb.WriteString(fmt.Sprintf("\n    - ApplicationInfo.Capabilities: %s", a.Capabilities))
	return sb.String()
}

// SelectResult is the parsed SELECT response. An initialized card
// returns application info; a factory-fresh card returns only its
// secure channel public key, possibly empty.
type SelectResult struct {
	Info *ApplicationInfo

	// PreInitKey is the card public key of an uninitialized card.
	PreInitKey []byte
}

// Initialized reports whether the applet has been through INIT.
func (r *SelectResult) Initialized() bool {
	return r.Info != nil
}

// ParseSelect decodes the SELECT response template.
func ParseSelect(fci []byte) (*SelectResult, error) {
	packets, err := bertlv.Decode(fci)
	if err != nil || len(packets) == 0 {
		return nil, &ParseError{Reason: "malformed SELECT response"}
	}

	switch strings.ToUpper(packets[0].Tag) {
	case tagHex(TAG_TEMPLATE_APPLICATION_INFO):
		info, err := parseApplicationInfo(packets[0].TLVs)
		if err != nil {
			return nil, err
		}
		return &SelectResult{Info: info}, nil
	case tagHex(TAG_ECC_PUBLIC_KEY):
		return &SelectResult{PreInitKey: packets[0].Value}, nil
	default:
		return nil, &ParseError{Reason: "unexpected SELECT response tag " + packets[0].Tag}
	}
}

// parseApplicationInfo walks the template children positionally: the
// applet emits instance UID, public key, version, remaining slots, key
// UID and capabilities in fixed order, and tag 02 appears twice with
// different meanings.
func parseApplicationInfo(children []bertlv.TLV) (*ApplicationInfo, error) {
	if len(children) < 6 {
		return nil, &ParseError{Reason: "application info template too short"}
	}

	info := &ApplicationInfo{
		InstanceUID: children[0].Value,
		PublicKey:   children[1].Value,
		KeyUID:      children[4].Value,
	}

	if len(children[2].Value) < 2 || len(children[3].Value) < 1 || len(children[5].Value) < 1 {
		return nil, &ParseError{Reason: "application info field too short"}
	}
	info.Version = Version{Major: children[2].Value[0], Minor: children[2].Value[1]}
	info.RemainingSlots = children[3].Value[0]
	info.Capabilities = Capabilities(children[5].Value[0])

	if len(info.InstanceUID) != 16 {
		return nil, &ParseError{Reason: "instance UID is not 16 bytes"}
	}
	if n := len(info.KeyUID); n != 0 && n != 32 {
		return nil, &ParseError{Reason: "key UID is not 32 bytes"}
	}
	return info, nil
}

// ApplicationStatus is the GET STATUS application template.
type ApplicationStatus struct {
	PINRetryCount  byte
	PUKRetryCount  byte
	KeyInitialized bool
}

// ParseApplicationStatus decodes the A3 template. Like the
// application info template it is positional: two TAG_OTHER retry
// counters followed by the key flag.
func ParseApplicationStatus(data []byte) (*ApplicationStatus, error) {
	packets, err := bertlv.Decode(data)
	if err != nil || len(packets) == 0 ||
		strings.ToUpper(packets[0].Tag) != tagHex(TAG_TEMPLATE_APPLICATION_STATUS) {
		return nil, &ParseError{Reason: "malformed application status"}
	}

	children := packets[0].TLVs
	if len(children) < 3 || len(children[0].Value) < 1 || len(children[1].Value) < 1 || len(children[2].Value) < 1 {
		return nil, &ParseError{Reason: "application status template too short"}
	}

	return &ApplicationStatus{
		PINRetryCount:  children[0].Value[0],
		PUKRetryCount:  children[1].Value[0],
		KeyInitialized: children[2].Value[0] == 0xFF,
	}, nil
}

// Signature is a parsed signature template: the signing public key and
// the raw ECDSA scalars.
type Signature struct {
	PublicKey []byte
	R         [32]byte
	S         [32]byte
}

// ParseSignature decodes the A0 template returned by SIGN and IDENT.
func ParseSignature(data []byte) (*Signature, error) {
	packets, err := bertlv.Decode(data)
	if err != nil || len(packets) == 0 ||
		strings.ToUpper(packets[0].Tag) != tagHex(TAG_TEMPLATE_SIGNATURE) {
		return nil, &ParseError{Reason: "malformed signature template"}
	}

	children := packets[0].TLVs
	if len(children) < 2 {
		return nil, &ParseError{Reason: "signature template too short"}
	}

	sig := &Signature{PublicKey: children[0].Value}
	if len(children[1].TLVs) < 2 {
		return nil, &ParseError{Reason: "ECDSA sequence too short"}
	}

	if err := copyScalar(sig.R[:], children[1].TLVs[0].Value); err != nil {
		return nil, err
	}
	if err := copyScalar(sig.S[:], children[1].TLVs[1].Value); err != nil {
		return nil, err
	}
	return sig, nil
}

// copyScalar keeps the low 32 bytes of a DER integer, dropping the
// leading zero DER adds when the high bit is set.
func copyScalar(dst []byte, raw []byte) error {
	if len(raw) < len(dst) {
		copy(dst[len(dst)-len(raw):], raw)
		return nil
	}
	copy(dst, raw[len(raw)-len(dst):])
	return nil
}

// Keypair is the EXPORT KEY response. Private key and chain code are
// present only when the export option allows them.
type Keypair struct {
	PublicKey  []byte `tlv:"80"`
	PrivateKey []byte `tlv:"81"`
	ChainCode  []byte `tlv:"82"`
}

func (k *Keypair) Verbose() string {
	var sb strings.Builder
	tlv.WriteStructFields(&sb, "Keypair", k)
	return sb.String()
}

// ParseKeypair decodes the A1 keypair template. Tags are unique here,
// so the struct-tag unmarshaler applies.
func ParseKeypair(data []byte) (*Keypair, error) {
	wrapper := struct {
		Keypair Keypair `tlv:"A1"`
	}{}
	if err := tlv.Unmarshal(data, &wrapper); err != nil {
		return nil, &ParseError{Reason: "malformed keypair template"}
	}
	return &wrapper.Keypair, nil
}

const hardenedBit = 0x80000000

// KeyPath is a BIP32 derivation path anchored at one of the card's
// derivation sources.
type KeyPath struct {
	Source     KeySource
	Components []uint32
}

// ParsePath parses a textual derivation path. "m/" anchors at the
// master key, "../" at the parent and "./" at the current key.
// Components may carry a ' suffix for hardened derivation.
func ParsePath(path string) (*KeyPath, error) {
	rest := path
	source := SourceMaster
	switch {
	case strings.HasPrefix(path, "m"):
		rest = strings.TrimPrefix(path, "m")
	case strings.HasPrefix(path, ".."):
		source = SourceParent
		rest = strings.TrimPrefix(path, "..")
	case strings.HasPrefix(path, "."):
		source = SourceCurrent
		rest = strings.TrimPrefix(path, ".")
	default:
		return nil, &PathError{Path: path, Reason: "missing m, .. or . anchor"}
	}

	kp := &KeyPath{Source: source}
	if rest == "" {
		return kp, nil
	}
	if !strings.HasPrefix(rest, "/") {
		return nil, &PathError{Path: path, Reason: "expected / after anchor"}
	}

	for _, part := range strings.Split(rest[1:], "/") {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") {
			hardened = true
			part = part[:len(part)-1]
		}

		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= hardenedBit {
			return nil, &PathError{Path: path, Reason: "component out of range"}
		}
		if hardened {
			n |= hardenedBit
		}
		kp.Components = append(kp.Components, uint32(n))
	}
	return kp, nil
}

// Encode serializes the components as big-endian 32-bit integers, the
// wire format DERIVE KEY and friends expect.
func (p *KeyPath) Encode() []byte {
	out := make([]byte, 0, 4*len(p.Components))
	for _, c := range p.Components {
		out = binary.BigEndian.AppendUint32(out, c)
	}
	return out
}

func (p *KeyPath) String() string {
	var sb strings.Builder
	switch p.Source {
	case SourceParent:
		sb.WriteString("..")
	case SourceCurrent:
		sb.WriteString(".")
	default:
		sb.WriteString("m")
	}
	for _, c := range p.Components {
		sb.WriteString("/")
		sb.WriteString(strconv.FormatUint(uint64(c&^hardenedBit), 10))
		if c&hardenedBit != 0 {
			sb.WriteString("'")
		}
	}
	return sb.String()
}

// ParseKeyPathStatus decodes the GET STATUS key path response, a bare
// sequence of big-endian components.
func ParseKeyPathStatus(data []byte) (*KeyPath, error) {
	if len(data)%4 != 0 {
		return nil, &ParseError{Reason: "key path is not a multiple of 4 bytes"}
	}

	kp := &KeyPath{Source: SourceMaster}
	for i := 0; i < len(data); i += 4 {
		kp.Components = append(kp.Components, binary.BigEndian.Uint32(data[i:i+4]))
	}
	return kp, nil
}

// MnemonicIndexes decodes the GENERATE MNEMONIC response into BIP39
// word list indexes.
func MnemonicIndexes(data []byte) ([]int, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, &ParseError{Reason: "mnemonic response is not a sequence of 16-bit indexes"}
	}

	indexes := make([]int, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		indexes = append(indexes, int(binary.BigEndian.Uint16(data[i:i+2])))
	}
	return indexes, nil
}

func tagHex(tag byte) string {
	return strings.ToUpper(hex.EncodeToString([]byte{tag}))
}
