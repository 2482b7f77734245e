package ode

import (
	"fmt"
	"math"
)

// Config holds the resource-control knobs for one integration: error
// tolerances, the step budget, and an optional initial step size.
type Config struct {

	// Relative error tolerance for adaptive step control.
	RelTol float64

	// Absolute error tolerance for adaptive step control.
	AbsTol float64

	// Maximum number of attempted steps before the integration is
	// abandoned with an error.
	MaxSteps int

	// Initial step size.  If zero, a fraction of the first report
	// interval is used.  Non-adaptive methods step with this size
	// throughout.
	InitialStep float64
}

// DefaultConfig returns the default integration settings.
func DefaultConfig() Config {
	return Config{
		RelTol:   1e-4,
		AbsTol:   1e-6,
		MaxSteps: 2000,
	}
}

// Stats describes the work performed during one integration.
type Stats struct {

	// Steps is the number of accepted steps.
	Steps int

	// Rejected is the number of attempted steps discarded by the error
	// control.
	Rejected int

	// Evals is the number of vector field evaluations.
	Evals int

	// LastStep is the size of the last accepted step.
	LastStep float64
}

// Trajectory is the solution of an ODE system sampled at a fixed grid of
// report times.  It is created fresh by each Integrate call and is never
// mutated afterwards.
type Trajectory struct {

	// Times is the report-time grid, strictly increasing.
	Times []float64

	// States[i] is the state vector at Times[i].
	States [][]float64
}

// At returns the state at report index i.
func (tr *Trajectory) At(i int) []float64 {
	return tr.States[i]
}

// Component returns the series of values of state component j across all
// report times.
func (tr *Trajectory) Component(j int) []float64 {
	v := make([]float64, len(tr.States))
	for i, s := range tr.States {
		v[i] = s[j]
	}
	return v
}

// Integrate advances the system f from state y0 at time t0 through every
// time in times, which must be strictly increasing with times[0] >= t0.  A
// report time equal to t0 records the initial state.  The returned
// trajectory holds the state at each report time; y0 is not modified.
// Integration failure (step budget exhausted, step size underflow) returns
// a non-nil error and no trajectory.
func (rk *RungeKutta) Integrate(f Func, t0 float64, y0 []float64, times []float64, cfg Config) (*Trajectory, *Stats, error) {

	if len(times) == 0 {
		return nil, nil, fmt.Errorf("ode: empty report time grid")
	}
	if times[0] < t0 {
		return nil, nil, fmt.Errorf("ode: first report time %v is before initial time %v", times[0], t0)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, nil, fmt.Errorf("ode: report times must be strictly increasing at index %d", i)
		}
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}

	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)
	ynew := make([]float64, n)
	errv := make([]float64, n)
	work := make([]float64, n)
	k := make([][]float64, rk.tableau.stages)
	for i := range k {
		k[i] = make([]float64, n)
	}

	tr := &Trajectory{
		Times:  times,
		States: make([][]float64, len(times)),
	}
	stats := &Stats{}

	h := cfg.InitialStep
	if h <= 0 {
		// Size the first step from the first report interval past t0.
		for _, ti := range times {
			if ti > t0 {
				h = (ti - t0) / 10
				break
			}
		}
		if h <= 0 {
			h = 1
		}
	}

	t := t0
	for i, tstop := range times {
		for t < tstop {
			if stats.Steps+stats.Rejected >= cfg.MaxSteps {
				return nil, stats, fmt.Errorf("ode: step budget of %d exhausted at t=%v", cfg.MaxSteps, t)
			}

			// Clip the step so report times are hit exactly; a clipped
			// step must not feed back into the step size controller.
			hs := h
			clipped := false
			if t+hs >= tstop {
				hs = tstop - t
				clipped = true
			}

			rk.step(f, t, hs, y, ynew, errv, k, work)
			stats.Evals += rk.tableau.stages

			if !rk.Adaptive() {
				copy(y, ynew)
				stats.Steps++
				stats.LastStep = hs
				if clipped {
					t = tstop
				} else {
					t += hs
				}
				continue
			}

			en := errorNorm(y, ynew, errv, cfg)
			if en <= 1 {
				copy(y, ynew)
				stats.Steps++
				stats.LastStep = hs
				if clipped {
					t = tstop
					continue
				}
				t += hs
			} else {
				stats.Rejected++
			}

			// Standard step-size controller for an order p embedded
			// pair, with growth and shrink limits.
			fac := 0.9 * math.Pow(1/en, 1/rk.tableau.order)
			if fac > 5 {
				fac = 5
			} else if fac < 0.1 {
				fac = 0.1
			}
			h = hs * fac
			if h < 1e-14 {
				return nil, stats, fmt.Errorf("ode: step size underflow at t=%v", t)
			}
		}
		s := make([]float64, n)
		copy(s, y)
		tr.States[i] = s
	}

	return tr, stats, nil
}

// errorNorm returns the scaled RMS norm of the embedded error estimate; a
// value of at most 1 means the step meets the tolerances.
func errorNorm(y, ynew, errv []float64, cfg Config) float64 {
	var s float64
	for i := range errv {
		sc := cfg.AbsTol + cfg.RelTol*math.Max(math.Abs(y[i]), math.Abs(ynew[i]))
		r := errv[i] / sc
		s += r * r
	}
	en := math.Sqrt(s / float64(len(errv)))
	if math.IsNaN(en) {
		return math.Inf(1)
	}
	return en
}
