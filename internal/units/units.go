// Package units provides shared constants and conversion for the voltage units
// exposed by the display layer.
package units

import "strings"

// Unit constants
const (
	Volts      = "V"
	Millivolts = "mV"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Volts, Millivolts}

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
	return strings.Join(ValidUnits, ", ")
}

// ConvertVoltage converts a value in volts to the target units.
// Histories always store volts.
func ConvertVoltage(volts float64, targetUnits string) float64 {
	switch targetUnits {
	case Millivolts:
		return volts * 1000
	default:
		return volts
	}
}

// ConvertSeries converts every sample in place and returns the slice.
func ConvertSeries(volts []float64, targetUnits string) []float64 {
	if targetUnits != Millivolts {
		return volts
	}
	for i, v := range volts {
		volts[i] = ConvertVoltage(v, targetUnits)
	}
	return volts
}
