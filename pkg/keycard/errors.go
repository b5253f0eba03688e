package keycard

import "fmt"

// ParseError reports a malformed card response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("keycard: %s", e.Reason)
}

// PINError reports a rejected PIN or PUK with the attempts the card
// still allows before blocking.
type PINError struct {
	Remaining int
}

func (e *PINError) Error() string {
	if e.Remaining == 0 {
		return "keycard: credential blocked"
	}
	return fmt.Sprintf("keycard: wrong credential, %d attempts remaining", e.Remaining)
}

// PathError reports a derivation path that could not be parsed.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("keycard: invalid derivation path %q: %s", e.Path, e.Reason)
}
