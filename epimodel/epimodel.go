// Package epimodel defines the core types shared by the compartmental
// epidemic models and the sampling engine: named bounded parameters with
// prior log-densities, the generative model interface evaluated once per
// posterior proposal, and count observation families.
package epimodel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// Parameter is one free, continuous, bounded parameter of a model.  The
// bounds declare the parameter's domain to the sampler; proposals outside
// the domain are rejected structurally rather than by the model.
type Parameter struct {

	// Name of the parameter, e.g. "beta".
	Name string

	// Min and Max bound the domain.  Max may be math.Inf(1) for a
	// half-open domain.
	Min, Max float64

	// LogPrior evaluates the prior log-density at a point inside the
	// domain.  Normalizing constants may be omitted.
	LogPrior func(x float64) float64

	// Init draws a starting value for the parameter.  It must return a
	// value inside the domain.
	Init func(rng *rand.Rand) float64
}

// Validate checks that the parameter declaration is well formed.
func (p *Parameter) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("epimodel: parameter has no name")
	}
	if !(p.Min < p.Max) {
		return fmt.Errorf("epimodel: parameter %s has bounds [%v, %v] with lower >= upper", p.Name, p.Min, p.Max)
	}
	if p.LogPrior == nil {
		return fmt.Errorf("epimodel: parameter %s has no prior", p.Name)
	}
	return nil
}

// In reports whether x lies inside the parameter's domain.
func (p *Parameter) In(x float64) bool {
	return x >= p.Min && x <= p.Max
}

// Model is a generative model whose posterior can be sampled.  One LogLike
// evaluation corresponds to one sampler proposal; implementations must be
// pure functions of theta with no mutable state shared across calls, so
// that independent chains can evaluate them concurrently.
type Model interface {

	// Parameters returns the free parameters in the order used by the
	// theta vectors passed to LogLike.
	Parameters() []Parameter

	// LogLike returns the log-likelihood of the observed data at theta.
	// An untenable proposal (failed trajectory, invalid expected counts)
	// is reported as math.Inf(-1), never as a panic.
	LogLike(theta []float64) float64
}

// Deriver is implemented by models that report derived quantities, such as
// a reproduction number, alongside each retained posterior draw.
type Deriver interface {

	// DerivedNames returns the names of the derived quantities.
	DerivedNames() []string

	// Derived evaluates the derived quantities at theta.
	Derived(theta []float64) []float64
}

// LogPrior sums the prior log-densities over theta, returning math.Inf(-1)
// when any component falls outside its declared domain.
func LogPrior(params []Parameter, theta []float64) float64 {
	if len(theta) != len(params) {
		panic(fmt.Sprintf("epimodel: theta has %d components, model has %d parameters", len(theta), len(params)))
	}
	var lp float64
	for i, p := range params {
		if !p.In(theta[i]) {
			return math.Inf(-1)
		}
		lp += p.LogPrior(theta[i])
	}
	return lp
}
