package units

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Numeric document field (units, rates, adjustment amounts)
// =============================================================================

// Quantity is a numeric field as stored in a document. Profile editors have
// written both JSON numbers and strings ("10", "7.5 hrs", "") over time, so the
// raw text is kept and interpreted with leading-number semantics: the longest
// numeric prefix is used and anything unparseable counts as zero.
type Quantity string

// leadingNumber matches the numeric prefix of a value, e.g. "7.5" in "7.5 hrs".
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Q builds a Quantity from a float.
func Q(v float64) Quantity {
	return Quantity(decimal.NewFromFloat(v).String())
}

// QuantityOf builds a Quantity from a decimal.
func QuantityOf(d decimal.Decimal) Quantity {
	return Quantity(d.String())
}

// Decimal returns the parsed value, or zero when the quantity is empty or has
// no numeric prefix.
func (q Quantity) Decimal() decimal.Decimal {
	s := strings.TrimSpace(string(q))
	if s == "" {
		return decimal.Zero
	}
	m := leadingNumber.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(m, "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Valid reports whether the quantity has a numeric prefix.
func (q Quantity) Valid() bool {
	return leadingNumber.MatchString(strings.TrimSpace(string(q)))
}

// IsZero reports whether the quantity parses to zero (including empty).
func (q Quantity) IsZero() bool { return q.Decimal().IsZero() }

func (q Quantity) String() string { return string(q) }

// MarshalJSON writes plain numbers as JSON numbers and anything else as a
// string, so the stored value round-trips unchanged.
func (q Quantity) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(q))
	if s == "" {
		return []byte(`""`), nil
	}
	if json.Valid([]byte(s)) && leadingNumber.FindString(s) == s {
		return []byte(s), nil
	}
	return json.Marshal(string(q))
}

// UnmarshalJSON accepts a number, a string, or null.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*q = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*q = Quantity(s)
		return nil
	}
	if b[0] == 't' || b[0] == 'f' || b[0] == '{' || b[0] == '[' {
		// Booleans and objects never carry a quantity.
		*q = ""
		return nil
	}
	*q = Quantity(b)
	return nil
}
