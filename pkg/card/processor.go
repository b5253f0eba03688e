// Package card layers command processing on top of a raw transport:
// an ordered pipeline of processors, a security-level policy and an
// executor tying them together.
package card

import (
	"github.com/cardium/cardium/pkg/apdu"
	"github.com/cardium/cardium/pkg/transport"
)

// Processor is one pipeline stage. A stage owns the complete exchange
// of a command: encoding, transmission and any protocol it adds on top
// (continuation fetching, secure messaging).
type Processor interface {
	// Process sends the command through the given transport and
	// returns the final response.
	Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error)

	// Level is the security the stage currently provides to commands
	// passing through it.
	Level() apdu.SecurityLevel

	// Active reports whether the stage is ready to take commands.
	// Inactive stages are skipped during dispatch.
	Active() bool
}

// Identity transmits commands unchanged. It is the pipeline's floor:
// always active, providing no security.
type Identity struct{}

// Process encodes, transmits and parses one exchange.
func (Identity) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	raw, err := cmd.Encode()
	if err != nil {
		return nil, err
	}
	reply, err := tr.TransmitRaw(raw)
	if err != nil {
		return nil, err
	}
	return apdu.ParseResponse(reply)
}

// Level of a plain exchange is none.
func (Identity) Level() apdu.SecurityLevel {
	return apdu.LevelNone()
}

// Active is always true; Identity is the fallback stage.
func (Identity) Active() bool {
	return true
}

// DefaultMaxChain bounds the GET RESPONSE continuation loop.
const DefaultMaxChain = 10

// GetResponse transparently completes 61XX exchanges: whenever the card
// announces more data, it issues GET RESPONSE on the same class and
// concatenates the payloads. The final status word is the last fetch's.
//
// T=0 cards answer many commands this way; without this stage every
// caller would reimplement the fetch loop.
type GetResponse struct {
	// MaxChain is the maximum number of continuation fetches for one
	// command. Zero means DefaultMaxChain.
	MaxChain int
}

// NewGetResponse creates the continuation stage with the given bound;
// pass 0 for the default.
func NewGetResponse(maxChain int) *GetResponse {
	return &GetResponse{MaxChain: maxChain}
}

// Process performs the initial exchange and drains any 61XX chain.
func (g *GetResponse) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	resp, err := (Identity{}).Process(cmd, tr)
	if err != nil {
		return nil, err
	}

	limit := g.MaxChain
	if limit <= 0 {
		limit = DefaultMaxChain
	}

	var collected []byte
	chains := 0
	for {
		collected = append(collected, resp.Data...)

		remaining, more := resp.MoreData()
		if !more {
			break
		}
		if chains >= limit {
			return nil, &ChainLimitError{Limit: limit}
		}
		chains++

		// Le 0 encodes "everything you have" when the card announced 6100.
		fetch := apdu.New(cmd.Cla, 0xC0, 0x00, 0x00).WithLe(int(remaining))
		resp, err = (Identity{}).Process(fetch, tr)
		if err != nil {
			return nil, err
		}
	}

	return &apdu.Response{Data: collected, SW: resp.SW}, nil
}

// Level of the continuation stage is none; it adds no protection.
func (g *GetResponse) Level() apdu.SecurityLevel {
	return apdu.LevelNone()
}

// Active is always true.
func (g *GetResponse) Active() bool {
	return true
}

// Pipeline is an ordered list of stages. Dispatch picks the FIRST
// active stage and hands it the whole exchange; stages do not compose.
// A secure channel placed ahead of the continuation fetcher therefore
// owns its own response completion, which keeps its MAC chain intact.
type Pipeline []Processor

// Process dispatches the command to the first active stage, falling
// back to a plain exchange when no stage is active.
func (p Pipeline) Process(cmd *apdu.Command, tr transport.Transport) (*apdu.Response, error) {
	for _, stage := range p {
		if stage.Active() {
			return stage.Process(cmd, tr)
		}
	}
	return (Identity{}).Process(cmd, tr)
}
