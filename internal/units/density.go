package units

import (
	"strings"

	"github.com/shopspring/decimal"
)

// densities holds grams per millilitre for ingredients the café converts
// between weight and volume.
var densities = map[string]decimal.Decimal{
	"water":          decimal.NewFromInt(1),
	"milk":           decimal.RequireFromString("1.03"),
	"oat milk":       decimal.RequireFromString("1.03"),
	"almond milk":    decimal.RequireFromString("1.03"),
	"heavy cream":    decimal.RequireFromString("1.01"),
	"honey":          decimal.RequireFromString("1.42"),
	"maple syrup":    decimal.RequireFromString("1.33"),
	"simple syrup":   decimal.RequireFromString("1.30"),
	"vegetable oil":  decimal.RequireFromString("0.92"),
	"condensed milk": decimal.RequireFromString("1.30"),
}

// LookupDensity returns the known g/mL density of an ingredient.
func LookupDensity(ingredient string) (decimal.Decimal, bool) {
	d, ok := densities[strings.ToLower(strings.TrimSpace(ingredient))]
	return d, ok
}

// Density selects the density used for a weight/volume bridge. An explicit
// value wins over the ingredient table.
type Density struct {
	Value      *decimal.Decimal
	Ingredient string
}

// WithDensity is a shorthand for an explicit density.
func WithDensity(gPerML decimal.Decimal) Density {
	return Density{Value: &gPerML}
}

// ForIngredient is a shorthand for a table lookup by ingredient name.
func ForIngredient(name string) Density {
	return Density{Ingredient: name}
}

// Check rejects an explicit density that is not positive.
func (d Density) Check() error {
	if d.Value != nil && !d.Value.IsPositive() {
		return &InvalidQuantityError{Value: d.Value.String(), Reason: "density must be positive"}
	}
	return nil
}

func (d Density) resolve() (decimal.Decimal, bool) {
	if d.Value != nil {
		return *d.Value, d.Value.IsPositive()
	}
	if d.Ingredient != "" {
		return LookupDensity(d.Ingredient)
	}
	return decimal.Zero, false
}
