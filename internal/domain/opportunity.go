package domain

import (
	"encoding/hex"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// OpportunityKind tags the detection strategy family that produced an
// opportunity. The coordinator and router switch exhaustively on it.
type OpportunityKind string

const (
	KindMultiHop    OpportunityKind = "multi_hop"
	KindEventDriven OpportunityKind = "event_driven"
	KindPredictive  OpportunityKind = "predictive"
	KindDirect      OpportunityKind = "direct"
)

// Hop is a single swap leg: sell TokenIn for TokenOut on Venue.
type Hop struct {
	Venue    string
	TokenIn  string
	TokenOut string
}

// Path is the ordered swap sequence of an opportunity. For a multi-hop cycle
// the last hop returns to the first hop's input token.
type Path []Hop

// Key returns the canonical string form of the path, used for deduplication.
// Two opportunities with the same Key within the dedup window are duplicates
// regardless of which strategy found them.
func (p Path) Key() string {
	var b strings.Builder
	for i, h := range p {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(h.Venue)
		b.WriteByte(':')
		b.WriteString(h.TokenIn)
		b.WriteByte('/')
		b.WriteString(h.TokenOut)
	}
	return b.String()
}

// Tokens returns the token sequence of the path, starting with the first
// hop's input token.
func (p Path) Tokens() []string {
	if len(p) == 0 {
		return nil
	}
	out := make([]string, 0, len(p)+1)
	out = append(out, p[0].TokenIn)
	for _, h := range p {
		out = append(out, h.TokenOut)
	}
	return out
}

// Opportunity is a candidate arbitrage detected by one strategy. It is
// immutable after creation; superseding information arrives as a new
// Opportunity. NetProfitUSD as reported by the producer is advisory — the
// coordinator always recomputes it at acceptance time.
type Opportunity struct {
	ID           string
	Kind         OpportunityKind
	Chain        ChainID
	Path         Path
	GrossUSD     decimal.Decimal // gross profit before gas
	GasUSD       decimal.Decimal // estimated gas at discovery time
	NetUSD       decimal.Decimal // GrossUSD - GasUSD
	NotionalUSD  decimal.Decimal // position size GrossUSD was measured at; profit scales with it
	Confidence   float64         // [0,1]
	DiscoveredAt time.Time
	Strategy     string // producing strategy name

	// DeadlineBlock, when non-zero, invalidates the opportunity once the
	// chain head passes it (event-driven opportunities). Staleness is
	// measured in blocks, not wall-clock.
	DeadlineBlock uint64
}

// OpportunityID derives a stable identifier from the path and discovery data.
// Keccak-256 keeps IDs compact and collision-resistant across strategies.
func OpportunityID(path Path, strategy string, discoveredAt time.Time) string {
	h := ethcrypto.Keccak256([]byte(path.Key()), []byte(strategy), []byte(discoveredAt.UTC().Format(time.RFC3339Nano)))
	return "0x" + hex.EncodeToString(h[:16])
}

// RejectReason explains why the coordinator dropped an opportunity.
type RejectReason string

const (
	RejectStalePrice          RejectReason = "stale_price"
	RejectBelowThreshold      RejectReason = "below_threshold"
	RejectDuplicateSuperseded RejectReason = "duplicate_superseded"
	RejectPlanInfeasible      RejectReason = "plan_infeasible"
)
