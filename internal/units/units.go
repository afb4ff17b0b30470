// Package units provides shared constants and conversions between raw ADC
// codes and voltages.
package units

import "fmt"

// Bounds for acquisition parameters. ADC bit depths outside 1..32 and
// reference voltages outside 0.1..10V are rejected at configuration time.
const (
	MinADCBits = 1
	MaxADCBits = 32
	MinVRef    = 0.1
	MaxVRef    = 10.0
)

// FullScaleCode returns the maximum ADC code for the given bit depth
// (2^bits - 1), or 0 if the bit depth is out of range.
func FullScaleCode(bits int) int64 {
	if bits < MinADCBits || bits > MaxADCBits {
		return 0
	}
	return int64(1)<<uint(bits) - 1
}

// ADCToVoltage converts a raw ADC code to volts given the converter bit depth
// and reference voltage: adc / (2^bits - 1) * vref.
func ADCToVoltage(raw int64, bits int, vref float64) float64 {
	maxCode := FullScaleCode(bits)
	if maxCode <= 0 {
		return 0
	}
	return float64(raw) / float64(maxCode) * vref
}

// ValidateADCBits checks that the bit depth is within the supported range.
func ValidateADCBits(bits int) error {
	if bits < MinADCBits || bits > MaxADCBits {
		return fmt.Errorf("adc bits must be between %d and %d, got %d", MinADCBits, MaxADCBits, bits)
	}
	return nil
}

// ValidateVRef checks that the reference voltage is within the supported range.
func ValidateVRef(vref float64) error {
	if vref < MinVRef || vref > MaxVRef {
		return fmt.Errorf("vref must be between %.1f and %.1f volts, got %g", MinVRef, MaxVRef, vref)
	}
	return nil
}

// FormatVoltage renders a voltage with the fixed precision used by exports.
func FormatVoltage(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// FormatTimestamp renders a timestamp in seconds with the fixed precision used
// by exports.
func FormatTimestamp(t float64) string {
	return fmt.Sprintf("%.6f", t)
}
