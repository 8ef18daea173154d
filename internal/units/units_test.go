package units

import (
	"math"
	"testing"
)

func TestConvertIlluminance(t *testing.T) {
	tests := []struct {
		name     string
		valueLux float64
		units    string
		expected float64
	}{
		{"midpoint to fc", 50000.0, FC, 4645.152},
		{"midpoint to klx", 50000.0, KLX, 50.0},
		{"midpoint to lux", 50000.0, LUX, 50000.0},
		{"unknown units default to lux", 50000.0, "unknown", 50000.0},
		{"0 lux to fc", 0.0, FC, 0.0},
		{"full sun 100000 lux to klx", 100000.0, KLX, 100.0},
		{"office 500 lux to fc", 500.0, FC, 46.45152},
		{"overcast 1000 lux to fc", 1000.0, FC, 92.90304},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertIlluminance(tt.valueLux, tt.units)
			if math.Abs(result-tt.expected) > 0.01 { // Allow small floating point differences
				t.Errorf("ConvertIlluminance(%f, %s) = %f, want %f", tt.valueLux, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid lux", LUX, true},
		{"valid fc", FC, true},
		{"valid klx", KLX, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "LUX", false},
		{"case sensitive", "Lux", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	expected := "lux, fc, klx"
	result := GetValidUnitsString()
	if result != expected {
		t.Errorf("GetValidUnitsString() = %s, want %s", result, expected)
	}
}

// Test conversion accuracy with known values
func TestConversionAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		valueLux float64
		unit     string
		expected float64
	}{
		// Test FC conversion (1 lux = 0.09290304 fc)
		{"1 lux to fc", 1.0, FC, 0.09290304},
		{"10 lux to fc", 10.0, FC, 0.9290304},

		// Test KLX conversion (1000 lux = 1 klx)
		{"1 lux to klx", 1.0, KLX, 0.001},
		{"2500 lux to klx", 2500.0, KLX, 2.5},

		// Test LUX (no conversion)
		{"5 lux to lux", 5.0, LUX, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertIlluminance(tt.valueLux, tt.unit)
			if math.Abs(result-tt.expected) > 0.0001 { // Very precise check
				t.Errorf("ConvertIlluminance(%f, %s) = %f, want %f", tt.valueLux, tt.unit, result, tt.expected)
			}
		})
	}
}
