package tlv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
)

type cardTemplate struct {
	InstanceUID []byte `tlv:"8F"`
	PublicKey   []byte `tlv:"80"`
	Raw         []byte // no tag
	KeyUID      []byte `tlv:"8E"`
	Other       []bertlv.TLV
}

func TestWriteStructFields(t *testing.T) {
	template := cardTemplate{
		InstanceUID: []byte{0xA0, 0x00, 0x01},
		PublicKey:   []byte{0x04, 0x11, 0x22},
		Raw:         []byte{0xCA, 0xFE},
		Other: []bertlv.TLV{
			{Tag: "C7", Value: []byte{0x12, 0x34}},
		},
	}

	tests := []struct {
		name   string
		prefix string
		input  interface{}
		want   []string
	}{
		{
			name:   "pointer input",
			prefix: "Card",
			input:  &template,
			want: []string{
				"    - Card.InstanceUID (8F): A00001",
				"    - Card.PublicKey (80): 041122",
				"    - Card.Raw: CAFE",
				"    - Card.Unknown Tag C7: 1234",
			},
		},
		{
			name:   "value input",
			prefix: "Val",
			input:  template,
			want: []string{
				"    - Val.InstanceUID (8F): A00001",
				"    - Val.PublicKey (80): 041122",
				"    - Val.Raw: CAFE",
				"    - Val.Unknown Tag C7: 1234",
			},
		},
		{
			name:   "nil pointer",
			prefix: "Nil",
			input:  (*cardTemplate)(nil),
			want:   []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			WriteStructFields(&sb, tt.prefix, tt.input)
			got := strings.Split(sb.String(), "\n")

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteStructFieldsSkipsEmpty(t *testing.T) {
	var sb strings.Builder
	WriteStructFields(&sb, "Card", &cardTemplate{PublicKey: []byte{0x04}})

	if sb.String() != "    - Card.PublicKey (80): 04" {
		t.Errorf("output = %q", sb.String())
	}
}

func TestWriteStructFieldsSeparatesBlocks(t *testing.T) {
	// A non-empty builder gets a separating newline, never a trailing one.
	var sb strings.Builder
	sb.WriteString("header")
	WriteStructFields(&sb, "Card", &cardTemplate{KeyUID: []byte{0xEE}})

	if sb.String() != "header\n    - Card.KeyUID (8E): EE" {
		t.Errorf("output = %q", sb.String())
	}
}
