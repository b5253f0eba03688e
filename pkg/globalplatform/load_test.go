package globalplatform

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadStreamBlocks(t *testing.T) {
	// 600 bytes of load file data plus the C4 82 02 58 prefix makes 604
	// bytes, which cuts into three blocks of 247.
	stream := NewLoadStream(make([]byte, 600), 0)
	require.Equal(t, 3, stream.Blocks())

	last, index, block, ok := stream.NextBlock()
	require.True(t, ok)
	require.False(t, last)
	require.Equal(t, byte(0), index)
	require.Len(t, block, DefaultBlockSize)
	require.Equal(t, []byte{TAG_LOAD_FILE_DATA_BLOCK, 0x82, 0x02, 0x58}, block[:4])

	last, index, block, ok = stream.NextBlock()
	require.True(t, ok)
	require.False(t, last)
	require.Equal(t, byte(1), index)
	require.Len(t, block, DefaultBlockSize)

	last, index, block, ok = stream.NextBlock()
	require.True(t, ok)
	require.True(t, last)
	require.Equal(t, byte(2), index)
	require.Len(t, block, 604-2*DefaultBlockSize)

	_, _, _, ok = stream.NextBlock()
	require.False(t, ok)
	require.False(t, stream.HasNext())
}

func TestLoadStreamSingleBlock(t *testing.T) {
	stream := NewLoadStream([]byte{0x01, 0x02, 0x03}, 16)
	require.Equal(t, 1, stream.Blocks())

	last, index, block, ok := stream.NextBlock()
	require.True(t, ok)
	require.True(t, last)
	require.Equal(t, byte(0), index)
	require.Equal(t, []byte{TAG_LOAD_FILE_DATA_BLOCK, 0x03, 0x01, 0x02, 0x03}, block)
}

func TestLoadStreamReassembles(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}

	stream := NewLoadStream(payload, 100)
	var joined []byte
	for {
		_, _, block, ok := stream.NextBlock()
		if !ok {
			break
		}
		joined = append(joined, block...)
	}

	require.Equal(t, []byte{TAG_LOAD_FILE_DATA_BLOCK, 0x82, 0x03, 0xE8}, joined[:4])
	require.Equal(t, payload, joined[4:])
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		length   int
		expected []byte
	}{
		{0x00, []byte{0x00}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x80}},
		{0xFF, []byte{0x81, 0xFF}},
		{0x100, []byte{0x82, 0x01, 0x00}},
		{0xFFFF, []byte{0x82, 0xFF, 0xFF}},
		{0x10000, []byte{0x83, 0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, encodeLength(tt.length))
	}
}

const testManifest = "Manifest-Version: 1.0\r\n" +
	"Java-Card-Package-AID: 0xa0:0x00:0x00:0x08:0x04:0x00:0x01\r\n" +
	"Java-Card-Package-Version: 1.2\r\n" +
	"Java-Card-Applet-1-AID: 0xa0:0x00:0x00:0x08:0x04:0x00:0x01:0x01\r\n" +
	"Java-Card-Applet-1-Name: Keycard\r\n"

func buildCAP(t *testing.T, withManifest bool) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	if withManifest {
		f, err := w.Create("META-INF/MANIFEST.MF")
		require.NoError(t, err)
		_, err = f.Write([]byte(testManifest))
		require.NoError(t, err)
	}

	// Minimal Header component: tag, size, CAP format version 2.1,
	// flags, package version 1.2, then the package AID.
	header := []byte{
		0x01, 0x00, 0x0F, 0x01, 0x02, 0x01, 0x00,
		0x00, 0x02, 0x01, 0x00, 0x00, 0x00,
		0x07, 0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01,
	}
	f, err := w.Create("demo/javacard/Header.cap")
	require.NoError(t, err)
	_, err = f.Write(header)
	require.NoError(t, err)

	f, err = w.Create("demo/javacard/Applet.cap")
	require.NoError(t, err)
	_, err = f.Write([]byte{0x03, 0x00, 0x02, 0xAA, 0xBB})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractCAPInfoFromManifest(t *testing.T) {
	raw := buildCAP(t, true)

	info, err := ExtractCAPInfo(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, mustDecode(t, "a0000008040001"), info.PackageAID)
	require.Equal(t, [2]byte{1, 2}, info.Version)
	require.Len(t, info.AppletAIDs, 1)
	require.Equal(t, mustDecode(t, "a000000804000101"), info.AppletAIDs[0])
	require.Equal(t, []string{"Keycard"}, info.AppletNames)
	require.Contains(t, info.Files, "demo/javacard/Header.cap")
}

func TestExtractCAPInfoHeaderFallback(t *testing.T) {
	raw := buildCAP(t, false)

	info, err := ExtractCAPInfo(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Equal(t, mustDecode(t, "a0000008040001"), info.PackageAID)
	require.Equal(t, [2]byte{0x02, 0x01}, info.Version)
}

func TestLoadStreamFromCAP(t *testing.T) {
	raw := buildCAP(t, true)

	stream, err := LoadStreamFromCAP(bytes.NewReader(raw), int64(len(raw)), 0)
	require.NoError(t, err)
	require.Equal(t, 1, stream.Blocks())

	// Header then Applet, in component order, behind the C4 prefix.
	_, _, block, ok := stream.NextBlock()
	require.True(t, ok)
	require.Equal(t, byte(TAG_LOAD_FILE_DATA_BLOCK), block[0])
	require.Equal(t, byte(21+5), block[1])
	require.Equal(t, byte(0x01), block[2])    // Header component tag
	require.Equal(t, byte(0x03), block[2+21]) // Applet component tag
}

func TestLoadStreamFromCAPNotZip(t *testing.T) {
	raw := []byte("not an archive")
	_, err := LoadStreamFromCAP(bytes.NewReader(raw), int64(len(raw)), 0)

	var capErr *CAPError
	require.ErrorAs(t, err, &capErr)
}
