package audio

import (
	"math"
)

// DecibelFloor is the lowest loudness value ever reported. Near-zero RMS
// would otherwise produce -Inf and poison threshold comparisons.
const DecibelFloor = -120.0

// fullScale is the maximum magnitude of a 16-bit PCM sample.
const fullScale = 32768.0

// RMS computes the root-mean-square amplitude of a window of 16-bit PCM
// samples, normalized to the 0..1 range.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		s := float64(sample)
		energy += s * s
	}

	return math.Sqrt(energy/float64(len(samples))) / fullScale
}

// Decibels converts a normalized RMS amplitude to dBFS, clamped at
// DecibelFloor for silent or near-silent windows.
func Decibels(rms float64) float64 {
	if rms <= 0 {
		return DecibelFloor
	}

	db := 20 * math.Log10(rms)
	if db < DecibelFloor {
		return DecibelFloor
	}

	return db
}
