package units

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Category groups units that convert into each other linearly.
type Category int

const (
	Weight Category = iota
	Volume
	Count
	Length
)

// String method for Category enum
func (c Category) String() string {
	switch c {
	case Weight:
		return "weight"
	case Volume:
		return "volume"
	case Count:
		return "count"
	case Length:
		return "length"
	default:
		return "unknown"
	}
}

// BaseUnit returns the unit all stock of this category is persisted in.
func (c Category) BaseUnit() Unit {
	switch c {
	case Weight:
		return Gram
	case Volume:
		return Millilitre
	case Count:
		return Piece
	case Length:
		return Centimetre
	default:
		return ""
	}
}

// Unit is a canonical measurement unit symbol.
type Unit string

const (
	Milligram Unit = "mg"
	Gram      Unit = "g"
	Kilogram  Unit = "kg"
	Ounce     Unit = "oz"
	Pound     Unit = "lb"

	Millilitre Unit = "mL"
	Litre      Unit = "L"
	Teaspoon   Unit = "tsp"
	Tablespoon Unit = "tbsp"
	FluidOunce Unit = "fl oz"
	Cup        Unit = "cup"
	Gallon     Unit = "gal"

	Piece Unit = "pieces"
	Dozen Unit = "dozen"

	Millimetre Unit = "mm"
	Centimetre Unit = "cm"
	Metre      Unit = "m"
	Inch       Unit = "in"
)

type unitDef struct {
	category Category
	factor   decimal.Decimal // multiply by this to reach the category base unit
}

var catalog = map[Unit]unitDef{
	Milligram: {Weight, decimal.RequireFromString("0.001")},
	Gram:      {Weight, decimal.NewFromInt(1)},
	Kilogram:  {Weight, decimal.NewFromInt(1000)},
	Ounce:     {Weight, decimal.RequireFromString("28.349523125")},
	Pound:     {Weight, decimal.RequireFromString("453.59237")},

	Millilitre: {Volume, decimal.NewFromInt(1)},
	Litre:      {Volume, decimal.NewFromInt(1000)},
	Teaspoon:   {Volume, decimal.RequireFromString("4.92892159375")},
	Tablespoon: {Volume, decimal.RequireFromString("14.78676478125")},
	FluidOunce: {Volume, decimal.RequireFromString("29.5735295625")},
	Cup:        {Volume, decimal.RequireFromString("236.5882365")},
	Gallon:     {Volume, decimal.RequireFromString("3785.411784")},

	Piece: {Count, decimal.NewFromInt(1)},
	Dozen: {Count, decimal.NewFromInt(12)},

	Millimetre: {Length, decimal.RequireFromString("0.1")},
	Centimetre: {Length, decimal.NewFromInt(1)},
	Metre:      {Length, decimal.NewFromInt(100)},
	Inch:       {Length, decimal.RequireFromString("2.54")},
}

// aliases maps lower-cased alternative spellings to canonical symbols.
var aliases = map[string]Unit{
	"milligram":   Milligram,
	"milligrams":  Milligram,
	"gram":        Gram,
	"grams":       Gram,
	"gr":          Gram,
	"kilogram":    Kilogram,
	"kilograms":   Kilogram,
	"kgs":         Kilogram,
	"ounce":       Ounce,
	"ounces":      Ounce,
	"pound":       Pound,
	"pounds":      Pound,
	"lbs":         Pound,
	"ml":          Millilitre,
	"millilitre":  Millilitre,
	"milliliter":  Millilitre,
	"l":           Litre,
	"litre":       Litre,
	"liter":       Litre,
	"liters":      Litre,
	"litres":      Litre,
	"teaspoon":    Teaspoon,
	"tablespoon":  Tablespoon,
	"floz":        FluidOunce,
	"fl_oz":       FluidOunce,
	"fluid ounce": FluidOunce,
	"cups":        Cup,
	"gallon":      Gallon,
	"gallons":     Gallon,
	"piece":       Piece,
	"pcs":         Piece,
	"pc":          Piece,
	"pieces":      Piece,
	"dozens":      Dozen,
	"millimetre":  Millimetre,
	"millimeter":  Millimetre,
	"centimetre":  Centimetre,
	"centimeter":  Centimetre,
	"metre":       Metre,
	"meter":       Metre,
	"inch":        Inch,
	"inches":      Inch,
}

// Compatibility describes how two units relate.
type Compatibility int

const (
	Incompatible Compatibility = iota
	Direct
	NeedsDensity
)

// String method for Compatibility enum
func (c Compatibility) String() string {
	switch c {
	case Direct:
		return "direct"
	case NeedsDensity:
		return "needs_density"
	default:
		return "incompatible"
	}
}

// Parse resolves a user supplied symbol to its canonical unit.
func Parse(symbol string) (Unit, error) {
	s := strings.TrimSpace(symbol)
	if _, ok := catalog[Unit(s)]; ok {
		return Unit(s), nil
	}
	lower := strings.ToLower(s)
	for u := range catalog {
		if strings.ToLower(string(u)) == lower {
			return u, nil
		}
	}
	if u, ok := aliases[lower]; ok {
		return u, nil
	}
	return "", &UnknownUnitError{Symbol: symbol}
}

// Lookup returns the category and base-unit factor of u.
func Lookup(u Unit) (Category, decimal.Decimal, error) {
	def, ok := catalog[u]
	if !ok {
		return 0, decimal.Zero, &UnknownUnitError{Symbol: string(u)}
	}
	return def.category, def.factor, nil
}

// CategoryOf returns the category u belongs to.
func CategoryOf(u Unit) (Category, error) {
	c, _, err := Lookup(u)
	return c, err
}

// Compatible reports whether from and to convert directly, through a
// density, or not at all.
func Compatible(from, to Unit) (Compatibility, error) {
	fc, err := CategoryOf(from)
	if err != nil {
		return Incompatible, err
	}
	tc, err := CategoryOf(to)
	if err != nil {
		return Incompatible, err
	}
	if fc == tc {
		return Direct, nil
	}
	if isMassVolume(fc, tc) {
		return NeedsDensity, nil
	}
	return Incompatible, nil
}

func isMassVolume(a, b Category) bool {
	return (a == Weight && b == Volume) || (a == Volume && b == Weight)
}

// UnitInfo is the public view of one catalog entry.
type UnitInfo struct {
	Symbol   Unit            `json:"symbol"`
	Category string          `json:"category"`
	BaseUnit Unit            `json:"base_unit"`
	Factor   decimal.Decimal `json:"factor"`
}

// Catalog lists every known unit ordered by category then factor.
func Catalog() []UnitInfo {
	out := make([]UnitInfo, 0, len(catalog))
	for u, def := range catalog {
		out = append(out, UnitInfo{
			Symbol:   u,
			Category: def.category.String(),
			BaseUnit: def.category.BaseUnit(),
			Factor:   def.factor,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ci, _ := CategoryOf(out[i].Symbol)
		cj, _ := CategoryOf(out[j].Symbol)
		if ci != cj {
			return ci < cj
		}
		return out[i].Factor.LessThan(out[j].Factor)
	})
	return out
}
