package units

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// FromFloat converts an external float into a quantity, rejecting NaN and
// infinities before they reach decimal arithmetic.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, &InvalidQuantityError{Value: fmt.Sprint(f), Reason: "must be finite"}
	}
	return decimal.NewFromFloat(f), nil
}

// CheckQuantity rejects negative quantities.
func CheckQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return &InvalidQuantityError{Value: q.String(), Reason: "must not be negative"}
	}
	return nil
}

// ToBaseUnit converts q in u into the base unit of u's category.
func ToBaseUnit(q decimal.Decimal, u Unit) (decimal.Decimal, Unit, error) {
	c, factor, err := Lookup(u)
	if err != nil {
		return decimal.Zero, "", err
	}
	if err := CheckQuantity(q); err != nil {
		return decimal.Zero, "", err
	}
	return q.Mul(factor), c.BaseUnit(), nil
}

// Convert moves q from one unit to another. Weight and volume bridge through
// the density; every other cross-category pair fails.
func Convert(q decimal.Decimal, from, to Unit, density Density) (decimal.Decimal, error) {
	fc, ff, err := Lookup(from)
	if err != nil {
		return decimal.Zero, err
	}
	tc, tf, err := Lookup(to)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckQuantity(q); err != nil {
		return decimal.Zero, err
	}
	if err := density.Check(); err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return q, nil
	}
	if fc == tc {
		return q.Mul(ff).Div(tf), nil
	}
	if !isMassVolume(fc, tc) {
		return decimal.Zero, &IncompatibleUnitsError{
			From:   from,
			To:     to,
			Reason: fmt.Sprintf("%s and %s units never convert", fc, tc),
		}
	}

	d, ok := density.resolve()
	if !ok {
		reason := "no density available"
		if density.Ingredient != "" {
			reason = fmt.Sprintf("no density known for %q", density.Ingredient)
		}
		return decimal.Zero, &IncompatibleUnitsError{From: from, To: to, Reason: reason}
	}

	base := q.Mul(ff)
	if fc == Volume {
		// mL -> g
		return base.Mul(d).Div(tf), nil
	}
	// g -> mL
	return base.Div(d).Div(tf), nil
}

// DisplayPlaces is the number of decimals shown for u.
func DisplayPlaces(u Unit) int32 {
	if c, err := CategoryOf(u); err == nil && c == Count {
		return 0
	}
	return 2
}

// RoundForDisplay converts a base-unit quantity to displayUnit and applies
// the display rounding policy.
func RoundForDisplay(base decimal.Decimal, displayUnit Unit) (decimal.Decimal, error) {
	c, err := CategoryOf(displayUnit)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := Convert(base.Abs(), c.BaseUnit(), displayUnit, Density{})
	if err != nil {
		return decimal.Zero, err
	}
	if base.IsNegative() {
		v = v.Neg()
	}
	return v.Round(DisplayPlaces(displayUnit)), nil
}

// FormatQuantity renders a base-unit quantity in displayUnit, e.g. "4.5 kg".
func FormatQuantity(base decimal.Decimal, displayUnit Unit) (string, error) {
	v, err := RoundForDisplay(base, displayUnit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", v.String(), displayUnit), nil
}

// ConversionNote describes the arithmetic performed on an input quantity.
func ConversionNote(original decimal.Decimal, from Unit, converted decimal.Decimal, to Unit, density Density) string {
	if from == to {
		return fmt.Sprintf("%s %s (no conversion)", original.String(), from)
	}
	note := fmt.Sprintf("%s %s = %s %s", original.String(), from, converted.String(), to)
	if c, _ := Compatible(from, to); c == NeedsDensity {
		if d, ok := density.resolve(); ok {
			note += fmt.Sprintf(" (density %s g/mL)", d.String())
		}
	}
	return note
}
