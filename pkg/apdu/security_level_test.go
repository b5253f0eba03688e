package apdu

import "testing"

func TestSecurityLevelSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		have     SecurityLevel
		want     SecurityLevel
		expected bool
	}{
		{"none satisfies none", LevelNone(), LevelNone(), true},
		{"none does not satisfy mac", LevelNone(), LevelMAC(), false},
		{"mac satisfies none", LevelMAC(), LevelNone(), true},
		{"mac satisfies mac", LevelMAC(), LevelMAC(), true},
		{"mac does not satisfy auth+mac", LevelMAC(), LevelAuthMAC(), false},
		{"full satisfies everything", LevelFull(), LevelAuthMAC(), true},
		{"disjoint properties do not satisfy", SecurityLevel{Encryption: true}, SecurityLevel{Authentication: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := tt.have.Satisfies(tt.want); res != tt.expected {
				t.Errorf("%s.Satisfies(%s) = %v; want %v", tt.have, tt.want, res, tt.expected)
			}
		})
	}
}

func TestSecurityLevelSatisfiesIsReflexive(t *testing.T) {
	levels := []SecurityLevel{
		LevelNone(), LevelMAC(), LevelAuthMAC(), LevelEncMAC(), LevelFull(),
	}
	for _, l := range levels {
		if !l.Satisfies(l) {
			t.Errorf("%s should satisfy itself", l)
		}
		if !LevelFull().Satisfies(l) {
			t.Errorf("full should satisfy %s", l)
		}
		if !l.Satisfies(LevelNone()) {
			t.Errorf("%s should satisfy none", l)
		}
	}
}

func TestSecurityLevelString(t *testing.T) {
	tests := []struct {
		level    SecurityLevel
		expected string
	}{
		{LevelNone(), "NONE"},
		{LevelMAC(), "MAC"},
		{LevelAuthMAC(), "AUTH+MAC"},
		{LevelFull(), "AUTH+MAC+ENC"},
	}

	for _, tt := range tests {
		if res := tt.level.String(); res != tt.expected {
			t.Errorf("String() = %q; want %q", res, tt.expected)
		}
	}
}
