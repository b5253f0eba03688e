package keycard

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardium/cardium/pkg/apdu"
)

func encodeCommand(t *testing.T, cmd *apdu.Command) string {
	t.Helper()
	raw, err := cmd.Encode()
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

func TestNewSelect(t *testing.T) {
	require.Equal(t, "00a4040008a00000080400010100", encodeCommand(t, NewSelect(nil)))

	custom := NewSelect([]byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x03})
	require.Equal(t, "00a4040008a00000080400010300", encodeCommand(t, custom))
}

func TestNewOpenSecureChannel(t *testing.T) {
	pub := make([]byte, 65)
	pub[0] = 0x04

	cmd := NewOpenSecureChannel(0x02, pub)
	raw, err := cmd.Encode()
	require.NoError(t, err)

	require.Equal(t, []byte{0x80, 0x10, 0x02, 0x00, 0x41}, raw[:5])
	require.Equal(t, pub, raw[5:70])
	require.Equal(t, byte(0x00), raw[70])
}

func TestNewPairSteps(t *testing.T) {
	var challenge [32]byte
	challenge[0] = 0xAB

	first := NewPairFirst(challenge)
	require.Equal(t,
		"8012000020ab00000000000000000000000000000000000000000000000000000000000000",
		encodeCommand(t, first))

	final := NewPairFinal(challenge)
	require.Equal(t, byte(P1_PAIR_FINAL_STEP), final.P1)
}

func TestNewFactoryReset(t *testing.T) {
	require.Equal(t, "80fdaa55", encodeCommand(t, NewFactoryReset()))
}

func TestNewVerifyPIN(t *testing.T) {
	cmd := NewVerifyPIN("123456")
	require.Equal(t, []byte("123456"), cmd.Data)
	require.Equal(t, apdu.LevelEncMAC(), cmd.Level)
}

func TestNewUnblockPIN(t *testing.T) {
	cmd := NewUnblockPIN("123456789012", "654321")
	require.Equal(t, []byte("123456789012654321"), cmd.Data)
	require.Equal(t, apdu.LevelEncMAC(), cmd.Level)
}

func TestNewChangePairingSecret(t *testing.T) {
	token := GeneratePairingToken("KeycardTest")

	cmd := NewChangePairingSecret("KeycardTest")
	require.Equal(t, byte(P1_CHANGE_PAIRING_SECRET), cmd.P1)
	require.Equal(t, token[:], cmd.Data)
	require.Equal(t, apdu.LevelFull(), cmd.Level)
}

func TestPINResolver(t *testing.T) {
	_, err := VerifyPINResolver.Resolve(&apdu.Response{SW: apdu.SW_NO_ERROR})
	require.NoError(t, err)

	_, err = VerifyPINResolver.Resolve(&apdu.Response{SW: apdu.NewStatusWord(0x63, 0xC2)})
	var pinErr *PINError
	require.ErrorAs(t, err, &pinErr)
	require.Equal(t, 2, pinErr.Remaining)

	_, err = VerifyPINResolver.Resolve(&apdu.Response{SW: apdu.NewStatusWord(0x63, 0xC0)})
	require.ErrorAs(t, err, &pinErr)
	require.Equal(t, 0, pinErr.Remaining)

	_, err = VerifyPINResolver.Resolve(&apdu.Response{SW: apdu.SW_ERR_SECURITY_STATUS_NOT_SAT})
	var statusErr *apdu.StatusError
	require.ErrorAs(t, err, &statusErr)
}

func TestNewGenerateMnemonic(t *testing.T) {
	cmd, err := NewGenerateMnemonic(12)
	require.NoError(t, err)
	require.Equal(t, byte(4), cmd.P1)

	cmd, err = NewGenerateMnemonic(24)
	require.NoError(t, err)
	require.Equal(t, byte(8), cmd.P1)

	_, err = NewGenerateMnemonic(13)
	require.Error(t, err)
}

func TestNewDeriveKey(t *testing.T) {
	kp, err := ParsePath("m/44'/60'/0'/0/0")
	require.NoError(t, err)

	cmd := NewDeriveKey(kp)
	require.Equal(t, byte(SourceMaster), cmd.P1)
	require.Equal(t,
		"8000002c8000003c800000000000000000000000",
		hex.EncodeToString(cmd.Data))
	require.Equal(t, apdu.LevelMAC(), cmd.Level)

	relative, err := ParsePath("../1")
	require.NoError(t, err)
	require.Equal(t, byte(SourceParent), NewDeriveKey(relative).P1)
}

func TestNewSignDerivationModes(t *testing.T) {
	var hash [32]byte
	kp, err := ParsePath("m/44'/60'/0'/0/0")
	require.NoError(t, err)

	plain := NewSign(hash, nil, false)
	require.Equal(t, byte(0x00), plain.P1)
	require.Equal(t, hash[:], plain.Data)

	temp := NewSign(hash, kp, false)
	require.Equal(t, byte(SourceMaster)|deriveTemporary, temp.P1)
	require.Equal(t, append(hash[:], kp.Encode()...), temp.Data)

	persist := NewSign(hash, kp, true)
	require.Equal(t, byte(SourceMaster)|derivePersistent, persist.P1)

	pinless := NewSignPinless(hash)
	require.Equal(t, byte(P1_SIGN_PINLESS), pinless.P1)
	require.Equal(t, apdu.LevelNone(), pinless.Level)
}

func TestNewLoadKeypair(t *testing.T) {
	priv := make([]byte, 32)
	for i := range priv {
		priv[i] = byte(i)
	}

	cmd, err := NewLoadKeypair(priv, nil, nil)
	require.NoError(t, err)
	require.Equal(t, byte(P1_LOAD_KEY_ECC), cmd.P1)
	require.Equal(t, append([]byte{0xA1, 0x22, 0x81, 0x20}, priv...), cmd.Data)

	chainCode := make([]byte, 32)
	extended, err := NewLoadKeypair(priv, nil, chainCode)
	require.NoError(t, err)
	require.Equal(t, byte(P1_LOAD_KEY_EXTENDED_ECC), extended.P1)
	require.Equal(t, byte(0x44), extended.Data[1])
	require.Equal(t, byte(TAG_CHAIN_CODE), extended.Data[36])

	_, err = NewLoadKeypair(priv[:31], nil, nil)
	require.Error(t, err)
}

func TestNewLoadSeed(t *testing.T) {
	cmd, err := NewLoadSeed(make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, byte(P1_LOAD_KEY_SEED), cmd.P1)
	require.Equal(t, apdu.LevelFull(), cmd.Level)

	_, err = NewLoadSeed(make([]byte, 32))
	require.Error(t, err)
}

func TestNewExportKey(t *testing.T) {
	cmd := NewExportKey(ExportPublicOnly, nil, false)
	require.Equal(t, byte(0x00), cmd.P1)
	require.Equal(t, byte(0x01), cmd.P2)
	require.Empty(t, cmd.Data)
	require.Equal(t, apdu.LevelFull(), cmd.Level)
}

func TestNewGetData(t *testing.T) {
	require.Equal(t, "80ca000000", encodeCommand(t, NewGetData(RecordPublic)))
	require.Equal(t, byte(RecordNDEF), NewGetData(RecordNDEF).P1)
}

func TestSelectResolverNotFound(t *testing.T) {
	_, err := SelectResolver.Resolve(&apdu.Response{SW: apdu.SW_ERR_FILE_NOT_FOUND})
	var statusErr *apdu.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Contains(t, statusErr.Error(), "applet not found")
}

func TestOpenSecureChannelResolver(t *testing.T) {
	payload := make([]byte, 48)
	payload[0] = 0x11
	payload[32] = 0x22

	params, err := OpenSecureChannelResolver.Resolve(&apdu.Response{Data: payload, SW: apdu.SW_NO_ERROR})
	require.NoError(t, err)
	require.Equal(t, byte(0x11), params.Challenge[0])
	require.Equal(t, byte(0x22), params.IV[0])

	_, err = OpenSecureChannelResolver.Resolve(&apdu.Response{Data: payload[:47], SW: apdu.SW_NO_ERROR})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestPairResolvers(t *testing.T) {
	payload := make([]byte, 64)
	payload[0] = 0xAA
	payload[32] = 0xBB

	first, err := PairFirstResolver.Resolve(&apdu.Response{Data: payload, SW: apdu.SW_NO_ERROR})
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), first.Cryptogram[0])
	require.Equal(t, byte(0xBB), first.Challenge[0])

	finalPayload := append([]byte{0x03}, make([]byte, 32)...)
	finalPayload[1] = 0xCC

	final, err := PairFinalResolver.Resolve(&apdu.Response{Data: finalPayload, SW: apdu.SW_NO_ERROR})
	require.NoError(t, err)
	require.Equal(t, byte(0x03), final.Index)
	require.Equal(t, byte(0xCC), final.Salt[0])

	_, err = PairFirstResolver.Resolve(&apdu.Response{SW: apdu.SW_ERR_NOT_ENOUGH_MEMORY})
	var statusErr *apdu.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Contains(t, statusErr.Error(), "pairing slots")
}

func TestKeyUIDResolver(t *testing.T) {
	uid := make([]byte, 32)
	out, err := GenerateKeyResolver.Resolve(&apdu.Response{Data: uid, SW: apdu.SW_NO_ERROR})
	require.NoError(t, err)
	require.Equal(t, uid, out)

	_, err = GenerateKeyResolver.Resolve(&apdu.Response{Data: uid[:16], SW: apdu.SW_NO_ERROR})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
