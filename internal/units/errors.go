package units

import "fmt"

// UnknownUnitError is returned for a symbol outside the catalog.
type UnknownUnitError struct {
	Symbol string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit: %q", e.Symbol)
}

// IncompatibleUnitsError is returned when no conversion path exists, including
// weight/volume conversions without a usable density.
type IncompatibleUnitsError struct {
	From   Unit
	To     Unit
	Reason string
}

func (e *IncompatibleUnitsError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot convert %s to %s: %s", e.From, e.To, e.Reason)
}

// InvalidQuantityError is returned for negative or non-finite quantities.
type InvalidQuantityError struct {
	Value  string
	Reason string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %s: %s", e.Value, e.Reason)
}
