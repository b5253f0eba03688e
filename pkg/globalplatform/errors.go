package globalplatform

import "fmt"

// UnsupportedSCPError reports a card proposing a secure channel
// protocol other than SCP02.
type UnsupportedSCPError struct {
	Version byte
}

func (e *UnsupportedSCPError) Error() string {
	return fmt.Sprintf("globalplatform: unsupported SCP version %02X (want 02)", e.Version)
}

// CAPError reports a CAP file that cannot be read or parsed.
type CAPError struct {
	Reason string
}

func (e *CAPError) Error() string {
	return fmt.Sprintf("globalplatform: invalid CAP file: %s", e.Reason)
}
