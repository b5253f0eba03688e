package tlv

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad fixture %q: %v", s, err)
	}
	return data
}

type registryEntry struct {
	AID       []byte   `tlv:"4F"`
	Lifecycle []byte   `tlv:"C5"`
	Modules   [][]byte `tlv:"84"`
}

func TestUnmarshalRegistryEntry(t *testing.T) {
	// GET STATUS application entry: AID, lifecycle, privileges.
	data := mustDecode(t, "e30f4f07a0000001514143c50107c60100")

	var parsed struct {
		Entries []struct {
			AID        []byte `tlv:"4F"`
			Lifecycle  []byte `tlv:"C5"`
			Privileges []byte `tlv:"C6"`
		} `tlv:"E3"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if len(parsed.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(parsed.Entries))
	}
	entry := parsed.Entries[0]
	if !bytes.Equal(entry.AID, mustDecode(t, "a0000001514143")) {
		t.Errorf("AID = %X", entry.AID)
	}
	if !bytes.Equal(entry.Lifecycle, []byte{0x07}) {
		t.Errorf("Lifecycle = %X", entry.Lifecycle)
	}
	if !bytes.Equal(entry.Privileges, []byte{0x00}) {
		t.Errorf("Privileges = %X", entry.Privileges)
	}
}

func TestUnmarshalRepeatedTags(t *testing.T) {
	// Load file entry with two executable modules under repeated tag 84.
	data := mustDecode(t, "e2184f05a0000000c1c501018405a0000000c28405a0000000c3")

	var parsed struct {
		Files []registryEntry `tlv:"E2"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	want := []registryEntry{{
		AID:       mustDecode(t, "a0000000c1"),
		Lifecycle: []byte{0x01},
		Modules: [][]byte{
			mustDecode(t, "a0000000c2"),
			mustDecode(t, "a0000000c3"),
		},
	}}
	if diff := cmp.Diff(want, parsed.Files); diff != "" {
		t.Errorf("load files mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalMultipleEntries(t *testing.T) {
	// Two registry templates back to back, as GET STATUS returns them.
	data := mustDecode(t, "e30a4f05a0000000c1c50101"+"e30a4f05a0000000c2c5010f")

	var parsed struct {
		Entries []registryEntry `tlv:"E3"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if len(parsed.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(parsed.Entries))
	}
	if !bytes.Equal(parsed.Entries[1].AID, mustDecode(t, "a0000000c2")) {
		t.Errorf("second AID = %X", parsed.Entries[1].AID)
	}
	if !bytes.Equal(parsed.Entries[1].Lifecycle, []byte{0x0F}) {
		t.Errorf("second Lifecycle = %X", parsed.Entries[1].Lifecycle)
	}
}

func TestUnmarshalNestedStruct(t *testing.T) {
	// Keypair template: public and private key under a constructed A1.
	data := mustDecode(t, "a10a80030102038103aabbcc")

	var parsed struct {
		Keypair struct {
			PublicKey  []byte `tlv:"80"`
			PrivateKey []byte `tlv:"81"`
		} `tlv:"A1"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(parsed.Keypair.PublicKey, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("PublicKey = %X", parsed.Keypair.PublicKey)
	}
	if !bytes.Equal(parsed.Keypair.PrivateKey, []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("PrivateKey = %X", parsed.Keypair.PrivateKey)
	}
}

func TestUnmarshalPointerField(t *testing.T) {
	data := mustDecode(t, "a10a80030102038103aabbcc")

	var parsed struct {
		Keypair *struct {
			PublicKey []byte `tlv:"80"`
		} `tlv:"A1"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if parsed.Keypair == nil {
		t.Fatal("Keypair not allocated")
	}
	if !bytes.Equal(parsed.Keypair.PublicKey, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("PublicKey = %X", parsed.Keypair.PublicKey)
	}
}

func TestUnmarshalConstructedIntoBytes(t *testing.T) {
	// A byte-slice field bound to a constructed tag receives the full
	// re-encoded template body.
	data := mustDecode(t, "a10a80030102038103aabbcc")

	var parsed struct {
		Raw []byte `tlv:"A1"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(parsed.Raw, mustDecode(t, "80030102038103aabbcc")) {
		t.Errorf("Raw = %X", parsed.Raw)
	}
}

func TestUnmarshalUnknownCollector(t *testing.T) {
	data := mustDecode(t, "4f05a0000000c1"+"c40100"+"c50101")

	var parsed struct {
		AID       []byte       `tlv:"4F"`
		Lifecycle []byte       `tlv:"C5"`
		Other     []bertlv.TLV `tlv:",unknown"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	if len(parsed.Other) != 1 {
		t.Fatalf("unknown packets = %d, want 1", len(parsed.Other))
	}
	if parsed.Other[0].Tag != "C4" {
		t.Errorf("unknown tag = %s, want C4", parsed.Other[0].Tag)
	}
	if !bytes.Equal(parsed.Other[0].Value, []byte{0x00}) {
		t.Errorf("unknown value = %X", parsed.Other[0].Value)
	}
}

func TestUnmarshalLowercaseTag(t *testing.T) {
	data := mustDecode(t, "4f05a0000000c1")

	var parsed struct {
		AID []byte `tlv:"4f"`
	}
	if err := Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.AID, mustDecode(t, "a0000000c1")) {
		t.Errorf("AID = %X", parsed.AID)
	}
}

func TestUnmarshalTargetErrors(t *testing.T) {
	data := mustDecode(t, "4f05a0000000c1")

	var parsed struct {
		AID []byte `tlv:"4F"`
	}
	if err := Unmarshal(data, parsed); err == nil {
		t.Error("non-pointer target accepted")
	}

	var nilTarget *registryEntry
	if err := Unmarshal(data, nilTarget); err == nil {
		t.Error("nil pointer target accepted")
	}
}

func TestUnmarshalBadData(t *testing.T) {
	var parsed registryEntry
	if err := Unmarshal(mustDecode(t, "4f05a000"), &parsed); err == nil {
		t.Error("truncated TLV accepted")
	}
}
