package domain

import "math"

// FeePolicy holds externally supplied fee constants for a movement class.
type FeePolicy struct {
	Rate    float64 // proportional fee, e.g. 0.02
	Minimum int64   // floor in smallest currency unit
}

// FeeFor computes max(minimum, round(amount*rate)).
func (p FeePolicy) FeeFor(amount int64) int64 {
	fee := int64(math.Round(float64(amount) * p.Rate))
	if fee < p.Minimum {
		return p.Minimum
	}
	return fee
}
