package epimodel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// FamilyType is the type of count observation family used in a model.
type FamilyType uint8

// NegBinomFamily, PoissonFamily are the available observation families.
const (
	NegBinomFamily FamilyType = iota
	PoissonFamily
)

// LogPmfFunc evaluates the log probability mass of observing count y given
// the expected count mean and the dispersion parameter phi.  A mean or
// dispersion outside the family's domain yields math.Inf(-1) so that the
// sampler rejects the proposal instead of crashing the run.
type LogPmfFunc func(y, mean, phi float64) float64

// RandFunc draws one count given the expected count and dispersion.
type RandFunc func(mean, phi float64, rng *rand.Rand) float64

// Family represents a count observation model.
type Family struct {

	// The name of the family
	Name string

	// The numeric code for the family
	TypeCode FamilyType

	// The log probability mass function for the family
	LogPmf LogPmfFunc

	// Rand draws one observation from the family
	Rand RandFunc
}

// NewFamily returns a family object corresponding to the given code.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case NegBinomFamily:
		return &negBinom
	case PoissonFamily:
		return &poisson
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

var negBinom = Family{
	Name:     "NegBinom",
	TypeCode: NegBinomFamily,
	LogPmf:   negBinomLogPmf,
	Rand:     negBinomRand,
}

var poisson = Family{
	Name:     "Poisson",
	TypeCode: PoissonFamily,
	LogPmf:   poissonLogPmf,
	Rand:     poissonRand,
}

// negBinomLogPmf is the negative binomial log-pmf in the mean/dispersion
// parameterization: E[y] = mean, Var[y] = mean + mean^2/phi.  phi is the
// reciprocal of the overdispersion parameter, so phi -> inf recovers the
// Poisson.
func negBinomLogPmf(y, mean, phi float64) float64 {

	if !(mean > 0) || !(phi > 0) || math.IsInf(mean, 1) || math.IsInf(phi, 1) {
		return math.Inf(-1)
	}

	c1, _ := math.Lgamma(y + phi)
	c2, _ := math.Lgamma(phi)
	c3, _ := math.Lgamma(y + 1)

	lt := math.Log(phi + mean)
	return c1 - c2 - c3 + phi*(math.Log(phi)-lt) + y*(math.Log(mean)-lt)
}

// negBinomRand draws from the negative binomial as a Gamma-Poisson mixture.
func negBinomRand(mean, phi float64, rng *rand.Rand) float64 {

	g := distuv.Gamma{Alpha: phi, Beta: phi / mean, Src: rng}
	lam := g.Rand()

	po := distuv.Poisson{Lambda: lam, Src: rng}
	return po.Rand()
}

// poissonLogPmf ignores the dispersion argument.
func poissonLogPmf(y, mean, phi float64) float64 {

	if !(mean > 0) || math.IsInf(mean, 1) {
		return math.Inf(-1)
	}

	g, _ := math.Lgamma(y + 1)
	return y*math.Log(mean) - mean - g
}

func poissonRand(mean, phi float64, rng *rand.Rand) float64 {
	po := distuv.Poisson{Lambda: mean, Src: rng}
	return po.Rand()
}
