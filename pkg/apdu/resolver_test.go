package apdu

import (
	"errors"
	"testing"
)

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		name     string
		pattern  Pattern
		sw       StatusWord
		expected bool
	}{
		{"exact hit", Exact(0x90, 0x00), SW_NO_ERROR, true},
		{"exact miss on SW2", Exact(0x90, 0x00), NewStatusWord(0x90, 0x01), false},
		{"SW1 wildcard hit", AnySW2(0x61), NewStatusWord(0x61, 0xFF), true},
		{"SW1 wildcard miss", AnySW2(0x61), NewStatusWord(0x6C, 0xFF), false},
		{"full wildcard", Any(), NewStatusWord(0x12, 0x34), true},
		{"status constant", Status(SW_ERR_FILE_NOT_FOUND), NewStatusWord(0x6A, 0x82), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := tt.pattern.Matches(tt.sw); res != tt.expected {
				t.Errorf("Matches(%s) = %v; want %v", tt.sw, res, tt.expected)
			}
		})
	}
}

func TestResolverFirstMatchWins(t *testing.T) {
	// An exact rule declared before a wildcard on the same SW1 must
	// shadow it, whatever the table layout suggests visually.
	resolver := Resolver[string]{
		{Pattern: Exact(0x61, 0x00), Handle: func(StatusWord, []byte) (string, error) {
			return "exact", nil
		}},
		{Pattern: AnySW2(0x61), Handle: func(StatusWord, []byte) (string, error) {
			return "wildcard", nil
		}},
	}

	res, err := resolver.Resolve(&Response{SW: NewStatusWord(0x61, 0x00)})
	if err != nil {
		t.Fatal(err)
	}
	if res != "exact" {
		t.Errorf("Resolve(6100) = %q; want %q", res, "exact")
	}

	res, err = resolver.Resolve(&Response{SW: NewStatusWord(0x61, 0x42)})
	if err != nil {
		t.Fatal(err)
	}
	if res != "wildcard" {
		t.Errorf("Resolve(6142) = %q; want %q", res, "wildcard")
	}
}

func TestResolverCapturesStatusAndPayload(t *testing.T) {
	type outcome struct {
		remaining byte
		payload   []byte
	}

	resolver := Resolver[outcome]{
		{Pattern: AnySW2(0x61), Handle: func(sw StatusWord, payload []byte) (outcome, error) {
			return outcome{remaining: sw.SW2(), payload: payload}, nil
		}},
	}

	res, err := resolver.Resolve(&Response{Data: []byte{0xAA, 0xBB}, SW: NewStatusWord(0x61, 0x10)})
	if err != nil {
		t.Fatal(err)
	}
	if res.remaining != 0x10 || len(res.payload) != 2 {
		t.Errorf("outcome = %+v; want remaining 10, 2 payload bytes", res)
	}
}

func TestResolverUnknownStatus(t *testing.T) {
	resolver := Resolver[struct{}]{
		{Pattern: Status(SW_NO_ERROR), Handle: func(StatusWord, []byte) (struct{}, error) {
			return struct{}{}, nil
		}},
	}

	_, err := resolver.Resolve(&Response{SW: NewStatusWord(0x1F, 0x2D)})
	var unknown *UnknownStatusError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStatusError, got %v", err)
	}
	if unknown.SW != NewStatusWord(0x1F, 0x2D) {
		t.Errorf("captured SW = %s; want 1F2D", unknown.SW)
	}
}

func TestResolverFail(t *testing.T) {
	resolver := Resolver[int]{
		{Pattern: Status(SW_ERR_SECURITY_STATUS_NOT_SAT), Handle: Fail[int]("security status not satisfied")},
	}

	_, err := resolver.Resolve(&Response{SW: SW_ERR_SECURITY_STATUS_NOT_SAT})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.SW != SW_ERR_SECURITY_STATUS_NOT_SAT {
		t.Errorf("captured SW = %s; want 6982", statusErr.SW)
	}
}
