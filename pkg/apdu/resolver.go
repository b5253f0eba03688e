package apdu

// Status-word dispatch:
//
// Every command family declares, next to its builders, an ordered table
// of (pattern, handler) rules. Resolving a response walks the table top
// to bottom and invokes the handler of the first pattern that matches
// the status word. Patterns come in three shapes, from most to least
// specific: an exact SW1-SW2 pair, an exact SW1 with any SW2 (for the
// dynamic 61XX / 6CXX / 63CX ranges), and a catch-all. A table that
// matches nothing ends in UnknownStatusError; unrecognized statuses are
// never silently treated as success.

type patternKind uint8

const (
	patternExact patternKind = iota
	patternAnySW2
	patternAny
)

// Pattern selects a set of status words.
type Pattern struct {
	kind patternKind
	sw1  byte
	sw2  byte
}

// Exact matches one status word.
func Exact(sw1, sw2 byte) Pattern {
	return Pattern{kind: patternExact, sw1: sw1, sw2: sw2}
}

// Status matches one status word given as a StatusWord constant.
func Status(sw StatusWord) Pattern {
	return Exact(sw.SW1(), sw.SW2())
}

// AnySW2 matches every status word with the given SW1, capturing the
// dynamic ranges where SW2 carries a value.
func AnySW2(sw1 byte) Pattern {
	return Pattern{kind: patternAnySW2, sw1: sw1}
}

// Any matches every status word. Place it last; rules after it are dead.
func Any() Pattern {
	return Pattern{kind: patternAny}
}

// Matches reports whether the pattern selects sw.
func (p Pattern) Matches(sw StatusWord) bool {
	switch p.kind {
	case patternExact:
		return sw.SW1() == p.sw1 && sw.SW2() == p.sw2
	case patternAnySW2:
		return sw.SW1() == p.sw1
	default:
		return true
	}
}

// Rule pairs a pattern with the handler producing the family's typed
// outcome. The handler receives the matched status word and the
// response data field; it may parse the payload into the outcome or
// return an error (typically a StatusError for declared failures, or a
// parse error when a success payload is malformed).
type Rule[T any] struct {
	Pattern Pattern
	Handle  func(sw StatusWord, payload []byte) (T, error)
}

// Resolver is an ordered rule table. First match wins.
type Resolver[T any] []Rule[T]

// Resolve dispatches the response through the table.
func (r Resolver[T]) Resolve(resp *Response) (T, error) {
	for _, rule := range r {
		if rule.Pattern.Matches(resp.SW) {
			return rule.Handle(resp.SW, resp.Data)
		}
	}
	var zero T
	return zero, &UnknownStatusError{SW: resp.SW}
}

// Fail builds a handler that rejects the response with a StatusError.
// Command families use it for their declared error patterns.
func Fail[T any](message string) func(StatusWord, []byte) (T, error) {
	return func(sw StatusWord, _ []byte) (T, error) {
		var zero T
		return zero, &StatusError{SW: sw, Message: message}
	}
}
