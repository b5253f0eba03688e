package card

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/transport"
)

func TestIdentityProcess(t *testing.T) {
	m := transport.NewMock().QueueResponse([]byte{0x01, 0x02, 0x90, 0x00})

	resp, err := (Identity{}).Process(apdu.New(0x00, 0xA4, 0x04, 0x00), m)
	if err != nil {
		t.Fatal(err)
	}

	expected := &apdu.Response{Data: []byte{0x01, 0x02}, SW: apdu.SW_NO_ERROR}
	if diff := cmp.Diff(expected, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(m.Commands[0], []byte{0x00, 0xA4, 0x04, 0x00}) {
		t.Errorf("wire command = %X; want 00A40400", m.Commands[0])
	}
}

func TestGetResponseNoChain(t *testing.T) {
	m := transport.NewMock().QueueResponse([]byte{0xAA, 0x90, 0x00})

	resp, err := NewGetResponse(0).Process(apdu.New(0x00, 0xB0, 0x00, 0x00), m)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp.Data, []byte{0xAA}) || resp.SW != apdu.SW_NO_ERROR {
		t.Errorf("response = %+v; want AA/9000", resp)
	}
	if len(m.Commands) != 1 {
		t.Errorf("sent %d commands; want 1", len(m.Commands))
	}
}

func TestGetResponseChain(t *testing.T) {
	// Three segments: 61xx twice, then final 9000. The payloads must
	// concatenate in order and the final status must be the last one.
	m := transport.NewMock().
		QueueResponse([]byte{0x01, 0x02, 0x61, 0x02}).
		QueueResponse([]byte{0x03, 0x04, 0x61, 0x01}).
		QueueResponse([]byte{0x05, 0x90, 0x00})

	resp, err := NewGetResponse(0).Process(apdu.New(0x80, 0xF2, 0x40, 0x02), m)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(resp.Data, []byte{0x01, 0x02, 0x03, 0x04, 0x05}) {
		t.Errorf("collected payload = %X; want 0102030405", resp.Data)
	}
	if resp.SW != apdu.SW_NO_ERROR {
		t.Errorf("final SW = %s; want 9000", resp.SW)
	}

	// Continuation commands ride the original class with INS C0 and the
	// announced remaining length as Le.
	if !bytes.Equal(m.Commands[1], []byte{0x80, 0xC0, 0x00, 0x00, 0x02}) {
		t.Errorf("first fetch = %X; want 80C0000002", m.Commands[1])
	}
	if !bytes.Equal(m.Commands[2], []byte{0x80, 0xC0, 0x00, 0x00, 0x01}) {
		t.Errorf("second fetch = %X; want 80C0000001", m.Commands[2])
	}
}

func TestGetResponseRemainingZeroMeansMax(t *testing.T) {
	m := transport.NewMock().
		QueueResponse([]byte{0x61, 0x00}).
		QueueResponse([]byte{0xFF, 0x90, 0x00})

	resp, err := NewGetResponse(0).Process(apdu.New(0x00, 0xA4, 0x04, 0x00), m)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp.Data, []byte{0xFF}) {
		t.Errorf("payload = %X; want FF", resp.Data)
	}
	// 61 00 announces 256 or more; the fetch asks for the maximum.
	if !bytes.Equal(m.Commands[1], []byte{0x00, 0xC0, 0x00, 0x00, 0x00}) {
		t.Errorf("fetch = %X; want 00C0000000", m.Commands[1])
	}
}

func TestGetResponseChainLimit(t *testing.T) {
	m := transport.NewMock()
	for i := 0; i < 4; i++ {
		m.QueueResponse([]byte{0x61, 0x01})
	}

	_, err := NewGetResponse(3).Process(apdu.New(0x00, 0xB0, 0x00, 0x00), m)
	var limitErr *ChainLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected ChainLimitError, got %v", err)
	}
	if limitErr.Limit != 3 {
		t.Errorf("Limit = %d; want 3", limitErr.Limit)
	}
}

func TestGetResponseTransportFailureMidChain(t *testing.T) {
	m := transport.NewMock().
		QueueResponse([]byte{0x01, 0x61, 0x05}).
		QueueError(transport.ErrCardReset)

	_, err := NewGetResponse(0).Process(apdu.New(0x00, 0xB0, 0x00, 0x00), m)
	if !errors.Is(err, transport.ErrCardReset) {
		t.Errorf("err = %v; want ErrCardReset", err)
	}
}

type stubStage struct {
	active bool
	level  apdu.SecurityLevel
	resp   *apdu.Response
	seen   int
}

func (s *stubStage) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	s.seen++
	return s.resp, nil
}

func (s *stubStage) Level() apdu.SecurityLevel { return s.level }
func (s *stubStage) Active() bool              { return s.active }

func TestPipelineFirstActiveWins(t *testing.T) {
	first := &stubStage{active: false}
	second := &stubStage{active: true, resp: &apdu.Response{SW: apdu.SW_NO_ERROR}}
	third := &stubStage{active: true, resp: &apdu.Response{SW: apdu.SW_ERR_UNKNOWN}}

	resp, err := Pipeline{first, second, third}.Process(apdu.New(0, 0, 0, 0), transport.NewMock())
	if err != nil {
		t.Fatal(err)
	}
	if resp.SW != apdu.SW_NO_ERROR {
		t.Errorf("SW = %s; want 9000 from the first active stage", resp.SW)
	}
	if first.seen != 0 || second.seen != 1 || third.seen != 0 {
		t.Errorf("dispatch counts = %d/%d/%d; want 0/1/0", first.seen, second.seen, third.seen)
	}
}

func TestPipelineFallsBackToIdentity(t *testing.T) {
	m := transport.NewMock().QueueResponse([]byte{0x90, 0x00})

	resp, err := Pipeline{&stubStage{active: false}}.Process(apdu.New(0x00, 0xB0, 0x00, 0x00), m)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsSuccess() {
		t.Errorf("SW = %s; want 9000", resp.SW)
	}
	if len(m.Commands) != 1 {
		t.Error("fallback should have hit the transport")
	}
}
