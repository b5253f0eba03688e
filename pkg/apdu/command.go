package apdu

import (
	"bytes"
	"fmt"
)

// APDU (Application Protocol Data Unit) structures and encodings according to ISO/IEC 7816-4.
//
// COMMAND APDU (C-APDU):
// A command consists of a mandatory Header (4 bytes) and an optional Body.
//
// 1. Header:
//   - CLA (Class): Security, Chaining, Logical Channel.
//   - INS (Instruction): The specific command to execute.
//   - P1, P2 (Parameters): Command modifiers.
//
// 2. Body:
//   - Lc (Length Command): Number of bytes in the data field.
//   - Data: The command payload.
//   - Le (Length Expected): Maximum number of bytes expected in the response.
//
// ENCODING CASES (ISO 7816-3):
// - Case 1: No Data, No Response (Header only).
// - Case 2: No Data, Response Expected (Header + Le).
// - Case 3: Data Present, No Response (Header + Lc + Data).
// - Case 4: Data Present, Response Expected (Header + Lc + Data + Le).
//
// Only Short Length mode is produced here: Lc/Le on one byte, with Le
// 0x00 encoding 256. Secure channel wrappers cap usable payloads well
// below 255 bytes, so Extended mode never comes into play.

// APDU limits in Short Length mode.
const (
	// MaxData is the maximum data length (Nc) encodable on one byte.
	MaxData = 255

	// MaxLe is the maximum expected response length. 0x00 encodes 256.
	MaxLe = 256
)

// Command represents a command sent to the card.
type Command struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
	Ne   int // Expected response length (0 means no Le field)

	// Level is the minimum channel security this command demands.
	// The zero value lets the command travel on a plain connection.
	Level SecurityLevel
}

// New creates a Case 1 command. Data, Le and security requirements are
// attached with the With* methods.
func New(cla, ins, p1, p2 byte) *Command {
	return &Command{Cla: cla, Ins: ins, P1: p1, P2: p2}
}

// WithData attaches a command payload.
func (c *Command) WithData(data []byte) *Command {
	c.Data = data
	return c
}

// WithLe sets the expected response length. Passing 0 requests the
// maximum (Le byte 0x00, meaning 256).
func (c *Command) WithLe(ne int) *Command {
	if ne == 0 {
		ne = MaxLe
	}
	c.Ne = ne
	return c
}

// Require marks the minimum security level the command must travel under.
func (c *Command) Require(level SecurityLevel) *Command {
	c.Level = level
	return c
}

// Encode serializes the command into its short-form byte representation.
func (c *Command) Encode() ([]byte, error) {
	nc := len(c.Data)
	if nc > MaxData {
		return nil, &CommandError{Field: "data", Size: nc}
	}
	if c.Ne < 0 || c.Ne > MaxLe {
		return nil, &CommandError{Field: "le", Size: c.Ne}
	}

	buf := new(bytes.Buffer)
	buf.WriteByte(c.Cla)
	buf.WriteByte(c.Ins)
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	if nc > 0 {
		buf.WriteByte(byte(nc))
		buf.Write(c.Data)
	}

	if c.Ne > 0 {
		if c.Ne == MaxLe {
			buf.WriteByte(0x00) // 0x00 represents 256
		} else {
			buf.WriteByte(byte(c.Ne))
		}
	}

	return buf.Bytes(), nil
}

// String returns a readable representation of the command meta-data.
func (c *Command) String() string {
	return fmt.Sprintf("CLA: %02X, INS: %02X | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Cla, c.Ins, c.P1, c.P2, len(c.Data), c.Ne)
}
