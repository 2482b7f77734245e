// Package compartment defines compartmental epidemic models: the
// single-population SIR model and its two-population extension driven by a
// contact matrix.  Each model encodes its transition equations as a pure
// vector field, derives expected daily incidence from an integrated
// trajectory, and scores observed case counts with a count observation
// family.  The models hold no mutable state across evaluations, so a
// sampler may evaluate them concurrently from independent chains.
package compartment

import (
	"fmt"
	"log"
	"math"

	"golang.org/x/exp/rand"

	"github.com/epifit/epifit/epimodel"
	"github.com/epifit/epifit/ode"
)

// MeanFloor is added to every expected count before likelihood evaluation
// so the observation mean stays strictly positive when a trajectory
// undershoots near-zero compartments.
const MeanFloor = 1e-5

// SIR is the three-compartment susceptible/infectious/recovered model for a
// single closed population.  The population size and observed counts are
// fixed at construction; the free parameters arrive as a vector on each
// LogLike call.
type SIR struct {

	// Population size, conserved along every trajectory.
	n float64

	// Report times, strictly increasing, in days since the initial time 0.
	times []float64

	// Observed daily case counts over the leading report times.  May be
	// shorter than times to leave a forecasting window.
	obs []float64

	// Count observation family
	fam *epimodel.Family

	// Integration method and settings
	method *ode.RungeKutta
	cfg    ode.Config

	// If not nil, write log messages here
	logger *log.Logger
}

// SIRParams holds one draw of the model's free parameters.  Named fields
// rather than positional indexing guard against transposition mistakes.
type SIRParams struct {

	// Beta is the transmission rate.
	Beta float64

	// Gamma is the recovery rate.
	Gamma float64

	// I0 is the infectious count at the initial time.
	I0 float64

	// DInv is the inverse dispersion of the observation model; the
	// negative binomial dispersion is 1/DInv.
	DInv float64
}

// NewSIR returns an SIR model for a population of size n reported at the
// given times, with observed counts over the leading len(obs) report times.
// obs may be nil when the model is used only for simulation.
func NewSIR(n float64, times, obs []float64) (*SIR, error) {

	if n <= 0 {
		return nil, fmt.Errorf("compartment: population size %v is not positive", n)
	}
	if err := checkTimes(times); err != nil {
		return nil, err
	}
	if err := checkCounts(obs, len(times)); err != nil {
		return nil, err
	}

	return &SIR{
		n:      n,
		times:  times,
		obs:    obs,
		fam:    epimodel.NewFamily(epimodel.NegBinomFamily),
		method: ode.NewFehlberg45(),
		cfg:    ode.DefaultConfig(),
	}, nil
}

// Family sets the count observation family.
func (m *SIR) Family(fam *epimodel.Family) *SIR {
	m.fam = fam
	return m
}

// Method sets the integration method.
func (m *SIR) Method(rk *ode.RungeKutta) *SIR {
	m.method = rk
	return m
}

// Config sets the integration tolerances and step budget.
func (m *SIR) Config(cfg ode.Config) *SIR {
	m.cfg = cfg
	return m
}

// Log takes a Logger value that will be used to report rejected proposals.
func (m *SIR) Log(logger *log.Logger) *SIR {
	m.logger = logger
	return m
}

// N returns the population size.
func (m *SIR) N() float64 {
	return m.n
}

// Times returns the report-time grid.
func (m *SIR) Times() []float64 {
	return m.times
}

// Params maps a parameter vector in sampling order to named fields.
func (m *SIR) Params(theta []float64) SIRParams {
	if len(theta) != 4 {
		panic(fmt.Sprintf("compartment: SIR parameter vector has %d components, want 4", len(theta)))
	}
	return SIRParams{Beta: theta[0], Gamma: theta[1], I0: theta[2], DInv: theta[3]}
}

// VectorField returns the SIR transition equations
//
//	dS/dt = -beta*I/N*S
//	dI/dt =  beta*I/N*S - gamma*I
//	dR/dt =  gamma*I
//
// as a pure function of (t, state).  The state is not clamped: keeping the
// trajectory physically meaningful is the job of the parameter priors.
func (m *SIR) VectorField(beta, gamma float64) ode.Func {
	n := m.n
	return func(t float64, y, dy []float64) {
		s, i := y[0], y[1]
		foi := beta * i / n
		dy[0] = -foi * s
		dy[1] = foi*s - gamma*i
		dy[2] = gamma * i
	}
}

// Simulate integrates the compartment trajectory for one parameter draw
// over the model's report times, starting from (N-I0, I0, 0) at time 0.
func (m *SIR) Simulate(p SIRParams) (*ode.Trajectory, error) {

	if p.I0 < 0 || p.I0 > m.n {
		return nil, fmt.Errorf("compartment: initial infectious count %v outside [0, %v]", p.I0, m.n)
	}

	y0 := []float64{m.n - p.I0, p.I0, 0}
	tr, _, err := m.method.Integrate(m.VectorField(p.Beta, p.Gamma), 0, y0, m.times, m.cfg)
	return tr, err
}

// Incidence derives the expected new-infection count at every report time
// from a trajectory: incidence(t) = beta*I(t)/N*S(t).  It is recomputed
// from scratch for each parameter draw; nothing is cached across draws.
func (m *SIR) Incidence(tr *ode.Trajectory, p SIRParams) []float64 {
	inc := make([]float64, len(tr.States))
	for i, y := range tr.States {
		inc[i] = p.Beta * y[1] / m.n * y[0]
	}
	return inc
}

// Parameters declares the free parameters, their domains, and their priors.
func (m *SIR) Parameters() []epimodel.Parameter {
	return []epimodel.Parameter{
		{
			Name:     "beta",
			Min:      0,
			Max:      1,
			LogPrior: epimodel.NormalPrior(0.3, 0.1),
			Init:     epimodel.TruncNormalInit(0.3, 0.1, 0, 1),
		},
		{
			Name:     "gamma",
			Min:      0,
			Max:      1,
			LogPrior: epimodel.NormalPrior(0.15, 0.1),
			Init:     epimodel.TruncNormalInit(0.15, 0.1, 0, 1),
		},
		{
			Name:     "i0",
			Min:      1,
			Max:      10,
			LogPrior: epimodel.NormalPrior(2, 10),
			Init:     epimodel.TruncNormalInit(2, 10, 1, 10),
		},
		{
			Name:     "d_inv",
			Min:      0,
			Max:      math.Inf(1),
			LogPrior: epimodel.ExponentialPrior(5),
			Init:     epimodel.ExponentialInit(5),
		},
	}
}

// LogLike evaluates the observation log-likelihood for one parameter draw.
// Any per-draw failure (trajectory cannot be integrated within the step
// budget, expected count invalid) yields math.Inf(-1) so the sampler
// rejects the proposal and moves on.
func (m *SIR) LogLike(theta []float64) float64 {

	p := m.Params(theta)

	tr, err := m.Simulate(p)
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("SIR: rejecting proposal: %v", err)
		}
		return math.Inf(-1)
	}

	inc := m.Incidence(tr, p)
	phi := 1 / p.DInv

	var ll float64
	for i, y := range m.obs {
		ll += m.fam.LogPmf(y, inc[i]+MeanFloor, phi)
		if math.IsInf(ll, -1) {
			return math.Inf(-1)
		}
	}

	return ll
}

// R0 returns the basic reproduction number beta/gamma.  It is a derived
// reporting quantity and plays no role in the likelihood.
func (m *SIR) R0(p SIRParams) float64 {
	return p.Beta / p.Gamma
}

// DerivedNames returns the names of the per-draw derived quantities.
func (m *SIR) DerivedNames() []string {
	return []string{"r0"}
}

// Derived evaluates the per-draw derived quantities.
func (m *SIR) Derived(theta []float64) []float64 {
	p := m.Params(theta)
	return []float64{m.R0(p)}
}

// SimulateCounts draws one synthetic count per report time from the
// observation family around the expected incidence.  It serves both to
// generate tutorial data and to produce posterior-predictive counts for a
// retained draw.
func (m *SIR) SimulateCounts(p SIRParams, rng *rand.Rand) ([]float64, error) {

	tr, err := m.Simulate(p)
	if err != nil {
		return nil, err
	}

	inc := m.Incidence(tr, p)
	phi := 1 / p.DInv

	y := make([]float64, len(inc))
	for i, mu := range inc {
		y[i] = m.fam.Rand(mu+MeanFloor, phi, rng)
	}

	return y, nil
}

// checkTimes validates a report-time grid: nonempty, strictly increasing,
// not starting before the initial time 0.
func checkTimes(times []float64) error {
	if len(times) == 0 {
		return fmt.Errorf("compartment: empty report time grid")
	}
	if times[0] < 0 {
		return fmt.Errorf("compartment: first report time %v is before the initial time 0", times[0])
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return fmt.Errorf("compartment: report times must be strictly increasing at index %d", i)
		}
	}
	return nil
}

// checkCounts validates an observed count series against the report grid
// length: counts are nonnegative integers and leave room for forecasting.
func checkCounts(obs []float64, ntimes int) error {
	if len(obs) > ntimes {
		return fmt.Errorf("compartment: %d observed counts exceed %d report times", len(obs), ntimes)
	}
	for i, y := range obs {
		if y < 0 || y != math.Floor(y) || math.IsInf(y, 0) {
			return fmt.Errorf("compartment: observed count %v at day %d is not a nonnegative integer", y, i+1)
		}
	}
	return nil
}

// Days returns the report-time grid 0, 1, ..., n-1 used by the tutorial
// models: one report per day, counting the seeding day at time 0 as day 1,
// so day d is reported at time d-1.
func Days(n int) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i)
	}
	return t
}
