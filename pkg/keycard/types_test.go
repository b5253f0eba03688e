package keycard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// field assembles one primitive TLV, using the long length form when
// the value exceeds 127 bytes.
func field(tag byte, value []byte) []byte {
	out := []byte{tag}
	if len(value) > 127 {
		out = append(out, 0x81)
	}
	out = append(out, byte(len(value)))
	return append(out, value...)
}

func generatorPoint(t *testing.T) []byte {
	t.Helper()
	return mustDecode(t,
		"0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"+
			"483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8")
}

func TestParseSelectInitialized(t *testing.T) {
	uid := make([]byte, 16)
	uid[0] = 0x5A
	pub := generatorPoint(t)
	keyUID := make([]byte, 32)
	keyUID[0] = 0x7E

	var inner []byte
	inner = append(inner, field(TAG_INSTANCE_UID, uid)...)
	inner = append(inner, field(TAG_ECC_PUBLIC_KEY, pub)...)
	inner = append(inner, field(TAG_OTHER, []byte{0x03, 0x01})...)
	inner = append(inner, field(TAG_OTHER, []byte{0x05})...)
	inner = append(inner, field(TAG_KEY_UID, keyUID)...)
	inner = append(inner, field(TAG_CAPABILITIES, []byte{0x0F})...)

	result, err := ParseSelect(field(TAG_TEMPLATE_APPLICATION_INFO, inner))
	require.NoError(t, err)
	require.True(t, result.Initialized())

	info := result.Info
	require.Equal(t, uid, info.InstanceUID)
	require.Equal(t, pub, info.PublicKey)
	require.Equal(t, "3.1", info.Version.String())
	require.Equal(t, byte(5), info.RemainingSlots)
	require.True(t, info.HasMasterKey())
	require.True(t, info.Capabilities.Has(CapSecureChannel))
	require.True(t, info.Capabilities.Has(CapNDEF))
}

func TestParseSelectNoMasterKey(t *testing.T) {
	var inner []byte
	inner = append(inner, field(TAG_INSTANCE_UID, make([]byte, 16))...)
	inner = append(inner, field(TAG_ECC_PUBLIC_KEY, generatorPoint(t))...)
	inner = append(inner, field(TAG_OTHER, []byte{0x03, 0x01})...)
	inner = append(inner, field(TAG_OTHER, []byte{0x05})...)
	inner = append(inner, field(TAG_KEY_UID, nil)...)
	inner = append(inner, field(TAG_CAPABILITIES, []byte{0x03})...)

	result, err := ParseSelect(field(TAG_TEMPLATE_APPLICATION_INFO, inner))
	require.NoError(t, err)
	require.False(t, result.Info.HasMasterKey())
	require.Equal(t, "secure channel, key management", result.Info.Capabilities.String())
}

func TestParseSelectPreInit(t *testing.T) {
	pub := generatorPoint(t)

	result, err := ParseSelect(field(TAG_ECC_PUBLIC_KEY, pub))
	require.NoError(t, err)
	require.False(t, result.Initialized())
	require.Equal(t, pub, result.PreInitKey)
}

func TestParseSelectMalformed(t *testing.T) {
	var parseErr *ParseError

	_, err := ParseSelect([]byte{0xA4})
	require.ErrorAs(t, err, &parseErr)

	_, err = ParseSelect(field(0xA9, []byte{0x01, 0x02}))
	require.ErrorAs(t, err, &parseErr)
}

func TestParseApplicationStatus(t *testing.T) {
	status, err := ParseApplicationStatus(mustDecode(t, "a3090201030201050101ff"))
	require.NoError(t, err)
	require.Equal(t, byte(3), status.PINRetryCount)
	require.Equal(t, byte(5), status.PUKRetryCount)
	require.True(t, status.KeyInitialized)

	status, err = ParseApplicationStatus(mustDecode(t, "a30902010302010501" + "0100"))
	require.NoError(t, err)
	require.False(t, status.KeyInitialized)

	_, err = ParseApplicationStatus(mustDecode(t, "a303020103"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseSignature(t *testing.T) {
	pub := generatorPoint(t)
	r := make([]byte, 32)
	for i := range r {
		r[i] = 0x11
	}
	s := make([]byte, 32)
	s[0] = 0x80

	var seq []byte
	seq = append(seq, field(0x02, r)...)
	// DER prepends a zero when the high bit is set.
	seq = append(seq, field(0x02, append([]byte{0x00}, s...))...)

	var inner []byte
	inner = append(inner, field(TAG_ECC_PUBLIC_KEY, pub)...)
	inner = append(inner, field(TAG_ECDSA_SIGNATURE, seq)...)

	sig, err := ParseSignature(field(TAG_TEMPLATE_SIGNATURE, inner))
	require.NoError(t, err)
	require.Equal(t, pub, sig.PublicKey)
	require.Equal(t, r, sig.R[:])
	require.Equal(t, s, sig.S[:])
}

func TestParseSignatureShortScalar(t *testing.T) {
	pub := generatorPoint(t)
	short := []byte{0x01, 0x02}

	var seq []byte
	seq = append(seq, field(0x02, short)...)
	seq = append(seq, field(0x02, short)...)

	var inner []byte
	inner = append(inner, field(TAG_ECC_PUBLIC_KEY, pub)...)
	inner = append(inner, field(TAG_ECDSA_SIGNATURE, seq)...)

	sig, err := ParseSignature(field(TAG_TEMPLATE_SIGNATURE, inner))
	require.NoError(t, err)
	require.Equal(t, byte(0x01), sig.R[30])
	require.Equal(t, byte(0x02), sig.R[31])
	require.Equal(t, byte(0x00), sig.R[0])
}

func TestParseKeypair(t *testing.T) {
	var inner []byte
	inner = append(inner, field(TAG_ECC_PUBLIC_KEY, []byte{0xAA, 0xBB, 0xCC})...)
	inner = append(inner, field(TAG_ECC_PRIVATE_KEY, []byte{0xDD, 0xEE, 0xFF})...)
	inner = append(inner, field(TAG_CHAIN_CODE, []byte{0x11, 0x22, 0x33})...)

	kp, err := ParseKeypair(field(TAG_TEMPLATE_KEYPAIR, inner))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, kp.PublicKey)
	require.Equal(t, []byte{0xDD, 0xEE, 0xFF}, kp.PrivateKey)
	require.Equal(t, []byte{0x11, 0x22, 0x33}, kp.ChainCode)

	_, err = ParseKeypair([]byte{0xA1})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path       string
		source     KeySource
		components []uint32
	}{
		{"m", SourceMaster, nil},
		{"m/44'/60'/0'/0/0", SourceMaster, []uint32{
			hardenedBit | 44, hardenedBit | 60, hardenedBit, 0, 0,
		}},
		{"m/0h/1", SourceMaster, []uint32{hardenedBit, 1}},
		{"../1", SourceParent, []uint32{1}},
		{"./2147483647", SourceCurrent, []uint32{0x7FFFFFFF}},
	}

	for _, tt := range tests {
		kp, err := ParsePath(tt.path)
		require.NoError(t, err, tt.path)
		require.Equal(t, tt.source, kp.Source, tt.path)
		require.Equal(t, tt.components, kp.Components, tt.path)
	}
}

func TestParsePathErrors(t *testing.T) {
	var pathErr *PathError
	for _, path := range []string{"", "44/60", "m44", "m/", "m/x", "m/2147483648", "m/-1"} {
		_, err := ParsePath(path)
		require.ErrorAs(t, err, &pathErr, path)
	}
}

func TestKeyPathRoundTrip(t *testing.T) {
	for _, path := range []string{"m", "m/44'/60'/0'/0/0", "../1", "./0'"} {
		kp, err := ParsePath(path)
		require.NoError(t, err)
		require.Equal(t, path, kp.String())
	}
}

func TestParseKeyPathStatus(t *testing.T) {
	kp, err := ParseKeyPathStatus(mustDecode(t, "8000002c8000003c800000000000000000000000"))
	require.NoError(t, err)
	require.Equal(t, "m/44'/60'/0'/0/0", kp.String())

	_, err = ParseKeyPathStatus([]byte{0x01, 0x02, 0x03})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestMnemonicIndexes(t *testing.T) {
	indexes, err := MnemonicIndexes(mustDecode(t, "000107ff0800"))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2047, 2048}, indexes)

	_, err = MnemonicIndexes([]byte{0x01})
	require.Error(t, err)

	_, err = MnemonicIndexes(nil)
	require.Error(t, err)
}
