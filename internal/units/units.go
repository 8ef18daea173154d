// Package units provides shared constants and validation for illuminance units
package units

// Unit constants
const (
	LUX = "lux"
	FC  = "fc"
	KLX = "klx"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{LUX, FC, KLX}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "lux, fc, klx"
}

// ConvertIlluminance converts an illuminance from lux to the target units
// Database stores illuminance in lux
func ConvertIlluminance(valueLux float64, targetUnits string) float64 {
	switch targetUnits {
	case FC:
		return valueLux * 0.09290304 // lux to foot-candles (1 ft² = 0.09290304 m²)
	case KLX:
		return valueLux / 1000.0 // lux to kilolux
	case LUX:
		return valueLux // no conversion needed
	default:
		return valueLux // default to lux if unknown unit
	}
}
