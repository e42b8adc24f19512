package receipt

import (
	"github.com/google/uuid"

	"github.com/zombor/splitledger/internal/ledger"
)

// IDGenerator generates identifiers for extracted items
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates random UUIDv4 strings
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// Candidate is an item read off a receipt, not yet attached to any event.
// Candidates whose price could not be parsed carry Err and keep the raw
// price text.
type Candidate struct {
	ID     string   `json:"id"`
	Item   string   `json:"item"`
	Price  string   `json:"price"`
	Payers []string `json:"payers"`
	Line   int      `json:"line"`
	Error  string   `json:"error,omitempty"`
	Err    error    `json:"-"`
}

// Normalizer turns parsed lines into candidates
type Normalizer struct {
	ids IDGenerator
}

// NewNormalizer creates a Normalizer with random UUID identifiers
func NewNormalizer() *Normalizer {
	return &Normalizer{ids: &defaultIDGenerator{}}
}

// NewNormalizerWithIDs creates a Normalizer with a custom ID generator for testing
func NewNormalizerWithIDs(ids IDGenerator) *Normalizer {
	return &Normalizer{ids: ids}
}

// Normalize assigns ids and canonical prices. A line with a bad price is
// returned with its error set; the others are unaffected.
func (n *Normalizer) Normalize(lines []Line) []Candidate {
	candidates := make([]Candidate, 0, len(lines))
	for _, line := range lines {
		c := Candidate{
			ID:     n.ids.Generate(),
			Item:   line.Item,
			Price:  line.Price,
			Payers: []string{},
			Line:   line.Number,
		}
		price, err := ledger.ParsePrice(line.Price)
		if err != nil {
			c.Err = err
			c.Error = err.Error()
		} else {
			c.Price = price.String()
		}
		candidates = append(candidates, c)
	}
	return candidates
}
