// Package environment implements live environments a task can collect
// trajectories from.
package environment

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r1"
)

const (
	gravity        = 9.8
	cartMass       = 1.0
	poleMass       = 0.1
	halfPoleLength = 0.5
	forceMag       = 10.0
	dt             = 0.02 // seconds between state updates

	positionBound = 4.8
	failAngle     = 12 * 2 * math.Pi / 360
	startBound    = 0.05

	// Discrete actions
	actionLeft    = 0
	actionNothing = 1
	actionRight   = 2
)

// Cartpole is the classic cart-pole balance environment. A pole is
// attached to a cart moving along a horizontal track, and the agent
// pushes the cart left or right to keep the pole upright.
//
// Observations are [cart position, cart speed, pole angle, pole
// angular velocity], with an angle of 0 pointing straight up. Actions
// are discrete: 0 accelerates left, 1 does nothing, 2 accelerates
// right. The reward is +1 per step while the pole is within the fail
// angle and -1 on the step that drops it past; that step ends the
// episode.
type Cartpole struct {
	rng            *rand.Rand
	positionBounds r1.Interval
	angleBounds    r1.Interval

	x, xDot, th, thDot float64
}

// NewCartpole returns a new Cartpole environment.
func NewCartpole(seed uint64) *Cartpole {
	return &Cartpole{
		rng:            rand.New(rand.NewSource(seed)),
		positionBounds: r1.Interval{Min: -positionBound, Max: positionBound},
		angleBounds:    r1.Interval{Min: -math.Pi, Max: math.Pi},
	}
}

// NumActions returns the size of the discrete action space.
func (c *Cartpole) NumActions() int { return 3 }

// ObservationDims returns the number of state features.
func (c *Cartpole) ObservationDims() int { return 4 }

// Reset starts a new episode with every state feature drawn uniformly
// from a small interval around the balance point.
func (c *Cartpole) Reset() ([]float64, error) {
	c.x = c.uniform(-startBound, startBound)
	c.xDot = c.uniform(-startBound, startBound)
	c.th = c.uniform(-startBound, startBound)
	c.thDot = c.uniform(-startBound, startBound)
	return c.observation(), nil
}

// Step applies one action with Euler kinematic integration of the
// cart-pole dynamics.
func (c *Cartpole) Step(action []float64) ([]float64, float64, bool,
	error) {
	if len(action) != 1 {
		return nil, 0, false, fmt.Errorf("step: actions are "+
			"1-dimensional, got %v dimensions", len(action))
	}

	var force float64
	switch int(action[0]) {
	case actionLeft:
		force = -forceMag
	case actionNothing:
		force = 0
	case actionRight:
		force = forceMag
	default:
		return nil, 0, false, fmt.Errorf("step: illegal action %v",
			action[0])
	}

	cosTheta := math.Cos(c.th)
	sinTheta := math.Sin(c.th)

	totalMass := poleMass + cartMass
	poleMassOverLength := poleMass / halfPoleLength

	temp := (force + poleMassOverLength*c.thDot*c.thDot*sinTheta) /
		totalMass
	thAcc := (gravity*sinTheta - cosTheta*temp) / (halfPoleLength *
		(4.0/3.0 - poleMass*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassOverLength*thAcc*cosTheta/totalMass

	c.x = clip(c.x+dt*c.xDot, c.positionBounds)
	c.xDot += dt * xAcc
	c.th = normalizeAngle(c.th+dt*c.thDot, c.angleBounds)
	c.thDot += dt * thAcc

	if math.Abs(c.th) >= failAngle {
		return c.observation(), -1.0, true, nil
	}
	return c.observation(), 1.0, false, nil
}

func (c *Cartpole) observation() []float64 {
	return []float64{c.x, c.xDot, c.th, c.thDot}
}

func (c *Cartpole) uniform(min, max float64) float64 {
	return min + (max-min)*c.rng.Float64()
}

// clip bounds v to the interval.
func clip(v float64, bounds r1.Interval) float64 {
	return math.Min(math.Max(v, bounds.Min), bounds.Max)
}

// normalizeAngle wraps th into the bounds interval, which must be
// symmetric about 0.
func normalizeAngle(th float64, bounds r1.Interval) float64 {
	if bounds.Max == math.MaxFloat64 {
		return th
	}
	width := bounds.Max - bounds.Min
	for th > bounds.Max {
		th -= width
	}
	for th < bounds.Min {
		th += width
	}
	return th
}
