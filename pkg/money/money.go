// Package money holds the decimal amount type used for every price, advance
// and total in clinicdesk, plus the small set of arithmetic helpers the
// billing roll-up is built from.
//
// Decoding is deliberately lenient: blank strings, null, and anything that is
// not a number decode to zero instead of failing the request.
package money

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Amount is a currency-agnostic decimal amount. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// New returns an Amount for f.
func New(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f)}
}

// FromInt returns an Amount for a whole number.
func FromInt(i int64) Amount {
	return Amount{d: decimal.NewFromInt(i)}
}

// Parse converts s to an Amount. Leading/trailing spaces are ignored and
// anything that does not parse as a number yields zero.
func Parse(s string) Amount {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero
	}
	return Amount{d: d}
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or
// greater than b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) IsZero() bool        { return a.d.IsZero() }
func (a Amount) IsNegative() bool    { return a.d.IsNegative() }
func (a Amount) IsPositive() bool    { return a.d.IsPositive() }

// Round2 rounds to two decimal places (half away from zero).
func (a Amount) Round2() Amount { return Amount{d: a.d.Round(2)} }

// Float64 returns the nearest float64. Only meant for display math such as
// percentages; totals stay decimal.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Amount) String() string { return a.d.String() }

// Fixed renders the amount with exactly two decimals, e.g. "120.50".
func (a Amount) Fixed() string { return a.d.StringFixed(2) }

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ClampZero returns a, or zero when a is negative.
func ClampZero(a Amount) Amount {
	if a.IsNegative() {
		return Zero
	}
	return a
}

// SubFloor returns max(0, a-b).
func SubFloor(a, b Amount) Amount {
	return ClampZero(a.Sub(b))
}

// MarshalJSON writes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings, blank strings and null.
// Anything else decodes to zero.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*a = Zero
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = Zero
			return nil
		}
		*a = Parse(s)
	default:
		*a = Parse(string(data))
	}
	return nil
}

// MarshalBSONValue stores the amount as Decimal128 so Mongo keeps the exact
// value and can still compare it numerically.
func (a Amount) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(a.d.String())
	if err != nil {
		return bson.MarshalValue(a.Float64())
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue reads Decimal128, double, int32, int64 and string
// values. Null, undefined and other types decode to zero.
func (a *Amount) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d, ok := rv.Decimal128OK()
		if !ok {
			*a = Zero
			return nil
		}
		*a = Parse(d.String())
	case bsontype.Double:
		*a = New(rv.Double())
	case bsontype.Int32:
		*a = FromInt(int64(rv.Int32()))
	case bsontype.Int64:
		*a = FromInt(rv.Int64())
	case bsontype.String:
		*a = Parse(rv.StringValue())
	default:
		*a = Zero
	}
	return nil
}
