package pricesource

import "MetalPulse/pkg/util"

const (
	gramsPerTroyOunce = 31.1035
	gramsPerTael      = 3.75

	// ounceToTael is how many taels (錢) one troy ounce holds.
	ounceToTael = gramsPerTroyOunce / gramsPerTael
)

// USDOunceToTWDTael converts an international USD/oz quote to TWD/tael.
func USDOunceToTWDTael(usdPerOunce, usdTWD float64) float64 {
	return util.Round2(usdPerOunce * usdTWD / ounceToTael)
}

// GramToTael converts a per-gram quote to per-tael.
func GramToTael(perGram float64) float64 {
	return util.Round2(perGram * gramsPerTael)
}
