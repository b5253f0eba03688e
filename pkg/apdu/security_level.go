package apdu

import "strings"

// SecurityLevel describes the protection in force on a channel, or the
// minimum protection a command demands before it may leave the host.
// Each property is independent; a level satisfies a requirement when it
// offers at least every property the requirement names.
type SecurityLevel struct {
	// Encryption: command payloads are encrypted on the wire.
	Encryption bool
	// Integrity: commands carry a MAC chained to the session history.
	Integrity bool
	// Authentication: the two parties have proven key possession.
	Authentication bool
}

// LevelNone is the state of a plain, unprotected connection.
func LevelNone() SecurityLevel {
	return SecurityLevel{}
}

// LevelMAC requires command integrity only.
func LevelMAC() SecurityLevel {
	return SecurityLevel{Integrity: true}
}

// LevelAuthMAC requires mutual authentication plus command integrity.
func LevelAuthMAC() SecurityLevel {
	return SecurityLevel{Integrity: true, Authentication: true}
}

// LevelEncMAC requires encryption plus command integrity.
func LevelEncMAC() SecurityLevel {
	return SecurityLevel{Encryption: true, Integrity: true}
}

// LevelFull requires all three properties.
func LevelFull() SecurityLevel {
	return SecurityLevel{Encryption: true, Integrity: true, Authentication: true}
}

// Satisfies reports whether l offers every property that required
// demands. The relation is a partial order: levels with disjoint
// properties do not satisfy each other, and LevelNone is satisfied by
// anything.
func (l SecurityLevel) Satisfies(required SecurityLevel) bool {
	if required.Encryption && !l.Encryption {
		return false
	}
	if required.Integrity && !l.Integrity {
		return false
	}
	if required.Authentication && !l.Authentication {
		return false
	}
	return true
}

func (l SecurityLevel) String() string {
	var parts []string
	if l.Authentication {
		parts = append(parts, "AUTH")
	}
	if l.Integrity {
		parts = append(parts, "MAC")
	}
	if l.Encryption {
		parts = append(parts, "ENC")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "+")
}
