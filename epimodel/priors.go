package epimodel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalPrior returns the log-density of a Normal(mu, sigma) prior.
// Truncation to the parameter's domain is handled structurally by the
// declared bounds, so the normalizing constant of the truncated density is
// omitted; it cancels in Metropolis ratios over a fixed domain.
func NormalPrior(mu, sigma float64) func(float64) float64 {
	if sigma <= 0 {
		panic(fmt.Sprintf("epimodel: normal prior sigma %v is not positive", sigma))
	}
	d := distuv.Normal{Mu: mu, Sigma: sigma}
	return d.LogProb
}

// ExponentialPrior returns the log-density of an Exponential prior with the
// given rate.
func ExponentialPrior(rate float64) func(float64) float64 {
	if rate <= 0 {
		panic(fmt.Sprintf("epimodel: exponential prior rate %v is not positive", rate))
	}
	d := distuv.Exponential{Rate: rate}
	return func(x float64) float64 {
		if x < 0 {
			return math.Inf(-1)
		}
		return d.LogProb(x)
	}
}

// TruncNormalInit draws from Normal(mu, sigma) restricted to [min, max] by
// rejection.  Suitable for starting values; the truncation regions used
// here retain ample mass so the loop terminates quickly.
func TruncNormalInit(mu, sigma, min, max float64) func(rng *rand.Rand) float64 {
	return func(rng *rand.Rand) float64 {
		d := distuv.Normal{Mu: mu, Sigma: sigma, Src: rng}
		for i := 0; i < 1000; i++ {
			x := d.Rand()
			if x >= min && x <= max {
				return x
			}
		}
		// Prior mass in the domain is vanishing; fall back to the
		// domain midpoint.
		return (min + max) / 2
	}
}

// ExponentialInit draws a starting value from an Exponential distribution
// with the given rate.
func ExponentialInit(rate float64) func(rng *rand.Rand) float64 {
	return func(rng *rand.Rand) float64 {
		d := distuv.Exponential{Rate: rate, Src: rng}
		return d.Rand()
	}
}
