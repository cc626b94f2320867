package solver

import "math"

// Schedule maps a training step number to a learning rate.
type Schedule func(step int) float64

// ConstantSchedule returns a schedule with a fixed learning rate.
func ConstantSchedule(lr float64) Schedule {
	return func(int) float64 { return lr }
}

// DecaySchedule returns a schedule that multiplies the base learning
// rate by decayRate every decaySteps steps.
func DecaySchedule(base float64, decaySteps int, decayRate float64) Schedule {
	return func(step int) float64 {
		return base * math.Pow(decayRate, float64(step/decaySteps))
	}
}
