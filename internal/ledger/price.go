package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceScale is the number of fractional digits kept for a price
const priceScale = 2

// priceText is the accepted shape of a price once "," has become ".". The
// digit counts are capped so a single request cannot carry a huge number.
var priceText = regexp.MustCompile(`^\d{1,15}(\.\d{1,15})?$`)

// Price is a non-negative fixed-point amount with two fractional digits
type Price struct {
	d decimal.Decimal
}

// ParsePrice parses a price string made of digits with an optional "," or "."
// decimal separator. Signs, exponents and grouping are rejected. Values are
// rounded to two fractional digits.
func ParsePrice(s string) (Price, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Price{}, fmt.Errorf("%w: empty price", ErrInvalidPrice)
	}
	if strings.HasPrefix(raw, "-") {
		return Price{}, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, raw)
	}
	normalized := strings.ReplaceAll(raw, ",", ".")
	if !priceText.MatchString(normalized) {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	return Price{d: d.Round(priceScale)}, nil
}

// MustParsePrice is like ParsePrice but panics on error. Intended for tests
// and constants.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PriceFromCents builds a price from an integer amount of cents
func PriceFromCents(cents int64) Price {
	return Price{d: decimal.New(cents, -priceScale)}
}

// Cents returns the price as an integer amount of cents
func (p Price) Cents() int64 {
	return p.d.Shift(priceScale).IntPart()
}

// Decimal exposes the underlying decimal value
func (p Price) Decimal() decimal.Decimal {
	return p.d
}

// Equal reports whether two prices are numerically equal
func (p Price) Equal(other Price) bool {
	return p.d.Equal(other.d)
}

// String formats the price with exactly two fractional digits, e.g. "2.50"
func (p Price) String() string {
	return p.d.StringFixed(priceScale)
}

// MarshalJSON writes the price as a bare JSON number with two decimals
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or a string such as "3,50"
func (p *Price) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePrice(string(rawPriceFromJSON(data)))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RawPrice holds a caller-provided price before validation. It decodes from a
// JSON number or string so that an unparseable value can be reported per item
// instead of failing the whole request body.
type RawPrice string

// UnmarshalJSON keeps the literal text of a number or the contents of a string
func (r *RawPrice) UnmarshalJSON(data []byte) error {
	*r = rawPriceFromJSON(data)
	return nil
}

func rawPriceFromJSON(data []byte) RawPrice {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return RawPrice(s)
		}
	}
	if bytes.Equal(data, []byte("null")) {
		return ""
	}
	return RawPrice(data)
}

// Parse validates the raw value
func (r RawPrice) Parse() (Price, error) {
	return ParsePrice(string(r))
}
