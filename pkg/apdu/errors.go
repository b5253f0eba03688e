package apdu

import "fmt"

// CommandError reports a command that cannot be serialized in short form.
type CommandError struct {
	Field string // "data" or "le"
	Size  int
}

func (e *CommandError) Error() string {
	switch e.Field {
	case "data":
		return fmt.Sprintf("apdu: data field of %d bytes exceeds short-form limit of %d", e.Size, MaxData)
	case "le":
		return fmt.Sprintf("apdu: expected length %d outside short-form range [0, %d]", e.Size, MaxLe)
	}
	return fmt.Sprintf("apdu: invalid %s field", e.Field)
}

// ResponseError reports raw card output too short to carry a status word.
type ResponseError struct {
	Length int
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("apdu: response too short: length %d", e.Length)
}

// StatusError is a declared error outcome of a command family: the card
// answered with a status the family recognizes as a failure.
type StatusError struct {
	SW      StatusWord
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (SW=%s)", e.Message, e.SW)
}

// UnknownStatusError is the terminal outcome of a resolver whose rule
// table matched nothing. It carries the raw status bytes so callers can
// log or escalate without guessing.
type UnknownStatusError struct {
	SW StatusWord
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown status word: %s", e.SW.Verbose())
}
