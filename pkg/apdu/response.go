package apdu

import "fmt"

// Response represents the reply from the card (R-APDU): an optional
// data field followed by the mandatory two-byte status word.
type Response struct {
	Data []byte
	SW   StatusWord
}

// ParseResponse parses raw bytes received from the card.
// The input must contain at least 2 bytes (SW1, SW2); a 2-byte input
// yields a response with no data field.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, &ResponseError{Length: len(raw)}
	}

	indexSW1 := len(raw) - 2
	var data []byte
	if indexSW1 > 0 {
		data = raw[:indexSW1]
	}

	return &Response{
		Data: data,
		SW:   NewStatusWord(raw[indexSW1], raw[indexSW1+1]),
	}, nil
}

// IsSuccess reports normal completion (9000).
func (r *Response) IsSuccess() bool {
	return r.SW.IsSuccess()
}

// MoreData reports whether the card announced further response bytes
// (61XX) and how many; 0 means 256 or more.
func (r *Response) MoreData() (byte, bool) {
	if !r.SW.HasMoreData() {
		return 0, false
	}
	return r.SW.SW2(), true
}

// WrongLength reports whether the card rejected the Le field (6CXX)
// and the exact length to retry with.
func (r *Response) WrongLength() (byte, bool) {
	if !r.SW.IsWrongLength() {
		return 0, false
	}
	return r.SW.SW2(), true
}

// String returns a readable representation of the response.
func (r *Response) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.SW.Verbose())
}
