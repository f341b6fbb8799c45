package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent covers the currencies the storefront ships in. Zero- and
// three-decimal currencies would need a per-currency table.
const minorUnitExponent = 2

// Money is an amount in minor currency units. Backends variously send it as a
// native integer, an integer string, or a decimal string ("20.00"); decimal
// strings are shifted into minor units without going through floats.
type Money int64

func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = 0
		return nil
	}

	var literal string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &literal); err != nil {
			return err
		}
		literal = strings.TrimSpace(literal)
	} else {
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("types: invalid money payload %s", trimmed)
		}
		literal = n.String()
	}

	if literal == "" {
		*m = 0
		return nil
	}

	dec, err := decimal.NewFromString(literal)
	if err != nil {
		return fmt.Errorf("types: %q is not a monetary amount: %w", literal, err)
	}
	if dec.IsNegative() {
		// Totals and prices are non-negative amounts; a negative value is a
		// drifted payload, not a parse variant to tolerate.
		return fmt.Errorf("types: %q is a negative monetary amount", literal)
	}

	if !strings.ContainsAny(literal, ".eE") {
		// Bare integer: already minor units.
		if !dec.IsInteger() {
			return fmt.Errorf("types: %q is not a monetary amount", literal)
		}
		*m = Money(dec.IntPart())
		return nil
	}

	shifted := dec.Shift(minorUnitExponent)
	if !shifted.IsInteger() {
		return fmt.Errorf("types: %q has sub-minor-unit precision", literal)
	}
	*m = Money(shifted.IntPart())
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(m))
}

func (m Money) Int64() int64 { return int64(m) }

// Display renders the amount as a major-unit decimal string.
func (m Money) Display() string {
	return decimal.New(int64(m), -minorUnitExponent).StringFixed(minorUnitExponent)
}
