package compartment

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/epifit/epifit/epimodel"
	"github.com/epifit/epifit/ode"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

// tutorialSIRParams is the simulation truth used in the examples.
func tutorialSIRParams() SIRParams {
	return SIRParams{
		Beta:  2.0 / 7,
		Gamma: 1.0 / 7,
		I0:    5,
		DInv:  0.2,
	}
}

func TestSIRConstructorValidation(t *testing.T) {

	times := Days(10)

	if _, err := NewSIR(0, times, nil); err == nil {
		t.Errorf("non-positive population accepted")
	}
	if _, err := NewSIR(1000, nil, nil); err == nil {
		t.Errorf("empty report grid accepted")
	}
	if _, err := NewSIR(1000, []float64{1, 1}, nil); err == nil {
		t.Errorf("non-increasing report grid accepted")
	}
	if _, err := NewSIR(1000, times, make([]float64, 11)); err == nil {
		t.Errorf("observed series longer than report grid accepted")
	}
	if _, err := NewSIR(1000, times, []float64{1, -2}); err == nil {
		t.Errorf("negative count accepted")
	}
	if _, err := NewSIR(1000, times, []float64{1, 2.5}); err == nil {
		t.Errorf("fractional count accepted")
	}
	if _, err := NewSIR(1000, times, []float64{3, 1, 0}); err != nil {
		t.Errorf("valid configuration rejected: %v", err)
	}
}

func TestSIRConservation(t *testing.T) {

	m, err := NewSIR(1000, Days(100), nil)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := m.Simulate(tutorialSIRParams())
	if err != nil {
		t.Fatal(err)
	}

	// Explicit Runge-Kutta steps preserve the linear invariant S+I+R
	// essentially to roundoff.
	for i, y := range tr.States {
		if !scalarClose(y[0]+y[1]+y[2], 1000, 1e-6) {
			t.Errorf("day %d: S+I+R = %v, want 1000", i+1, y[0]+y[1]+y[2])
		}
	}
}

func TestSIRMonotonicRecovery(t *testing.T) {

	m, err := NewSIR(1000, Days(100), nil)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := m.Simulate(tutorialSIRParams())
	if err != nil {
		t.Fatal(err)
	}

	prev := 0.0
	for i, y := range tr.States {
		if y[2] < prev-1e-9 {
			t.Errorf("day %d: R decreased from %v to %v", i+1, prev, y[2])
		}
		prev = y[2]
	}
}

func TestSIRDayConvention(t *testing.T) {

	// Day d is reported at time d-1; the seeding day is day 1 at time 0.
	times := Days(3)
	for i, w := range []float64{0, 1, 2} {
		if times[i] != w {
			t.Errorf("Days(3)[%d] = %v, want %v", i, times[i], w)
		}
	}

	m, err := NewSIR(1000, Days(10), nil)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := m.Simulate(tutorialSIRParams())
	if err != nil {
		t.Fatal(err)
	}

	// Day 1 is the seeding state.
	if y := tr.At(0); !floats.EqualApprox(y, []float64{995, 5, 0}, 1e-9) {
		t.Errorf("day 1 state %v, want (995, 5, 0)", y)
	}
}

func TestSIRScenarioDay30(t *testing.T) {

	m, err := NewSIR(1000, Days(100), nil)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := m.Simulate(tutorialSIRParams())
	if err != nil {
		t.Fatal(err)
	}

	y := tr.At(29) // day 30, 29 time units after seeding
	want := []float64{665.95, 133.28, 200.76}
	for j, w := range want {
		if !scalarClose(y[j], w, 1.0) {
			t.Errorf("day 30 component %d: %v, want about %v", j, y[j], w)
		}
	}
}

func TestSIRIncidenceNonnegative(t *testing.T) {

	m, err := NewSIR(1000, Days(120), nil)
	if err != nil {
		t.Fatal(err)
	}

	p := tutorialSIRParams()
	tr, err := m.Simulate(p)
	if err != nil {
		t.Fatal(err)
	}

	for i, v := range m.Incidence(tr, p) {
		if v < 0 {
			t.Errorf("day %d: incidence %v < 0", i+1, v)
		}
	}
}

func TestSIRR0ClosedForm(t *testing.T) {

	m, err := NewSIR(1000, Days(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	if r0 := m.R0(tutorialSIRParams()); !scalarClose(r0, 2, 1e-12) {
		t.Errorf("R0 = %v, want 2", r0)
	}
}

func TestSIRSimulateRejectsExcessSeed(t *testing.T) {

	m, err := NewSIR(100, Days(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	p := tutorialSIRParams()
	p.I0 = 200
	if _, err := m.Simulate(p); err == nil {
		t.Errorf("initial infectious count above the population accepted")
	}
}

func TestSIRLogLike(t *testing.T) {

	rng := rand.New(rand.NewSource(42))
	truth := tutorialSIRParams()

	gen, err := NewSIR(1000, Days(50), nil)
	if err != nil {
		t.Fatal(err)
	}
	obs, err := gen.SimulateCounts(truth, rng)
	if err != nil {
		t.Fatal(err)
	}

	m, err := NewSIR(1000, Days(50), obs)
	if err != nil {
		t.Fatal(err)
	}

	theta := []float64{truth.Beta, truth.Gamma, truth.I0, truth.DInv}
	ll := m.LogLike(theta)
	if math.IsInf(ll, 0) || math.IsNaN(ll) {
		t.Fatalf("log-likelihood at the truth is %v", ll)
	}

	// A hopeless parameter set scores worse than the truth.
	far := m.LogLike([]float64{0.9, 0.01, 1, 0.001})
	if far >= ll {
		t.Errorf("far-off parameters score %v, truth scores %v", far, ll)
	}

	// The Poisson family drops the overdispersion but still scores the
	// same data with a finite log-likelihood.
	m.Family(epimodel.NewFamily(epimodel.PoissonFamily))
	if got := m.LogLike(theta); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("Poisson log-likelihood at the truth is %v", got)
	}
	m.Family(epimodel.NewFamily(epimodel.NegBinomFamily))

	// An exhausted step budget rejects rather than crashing.
	cfg := ode.DefaultConfig()
	cfg.MaxSteps = 2
	m.Config(cfg)
	if got := m.LogLike(theta); !math.IsInf(got, -1) {
		t.Errorf("step-starved evaluation gave %v, want -Inf", got)
	}
}

func TestSIRForecastPadding(t *testing.T) {

	rng := rand.New(rand.NewSource(7))
	truth := tutorialSIRParams()

	gen, err := NewSIR(1000, Days(100), nil)
	if err != nil {
		t.Fatal(err)
	}
	obs, err := gen.SimulateCounts(truth, rng)
	if err != nil {
		t.Fatal(err)
	}

	exact, err := NewSIR(1000, Days(100), obs)
	if err != nil {
		t.Fatal(err)
	}
	padded, err := NewSIR(1000, Days(120), obs)
	if err != nil {
		t.Fatal(err)
	}

	// The likelihood covers only the observed prefix, so padding the
	// report grid for forecasting does not change it.
	theta := []float64{truth.Beta, truth.Gamma, truth.I0, truth.DInv}
	if a, b := exact.LogLike(theta), padded.LogLike(theta); !scalarClose(a, b, 1e-8) {
		t.Errorf("padding changed the log-likelihood: %v != %v", a, b)
	}
}

func TestSIRParameters(t *testing.T) {

	m, err := NewSIR(1000, Days(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	params := m.Parameters()
	names := []string{"beta", "gamma", "i0", "d_inv"}
	if len(params) != len(names) {
		t.Fatalf("got %d parameters, want %d", len(params), len(names))
	}
	rng := rand.New(rand.NewSource(1))
	for i, p := range params {
		if p.Name != names[i] {
			t.Errorf("parameter %d is %q, want %q", i, p.Name, names[i])
		}
		if err := p.Validate(); err != nil {
			t.Errorf("parameter %s: %v", p.Name, err)
		}
		for k := 0; k < 100; k++ {
			if x := p.Init(rng); !p.In(x) {
				t.Fatalf("parameter %s: init draw %v outside [%v, %v]", p.Name, x, p.Min, p.Max)
			}
		}
	}

	if _, ok := interface{}(m).(epimodel.Deriver); !ok {
		t.Errorf("SIR does not report derived quantities")
	}
	d := m.Derived([]float64{0.4, 0.2, 5, 0.2})
	if !scalarClose(d[0], 2, 1e-12) {
		t.Errorf("derived r0 = %v, want 2", d[0])
	}
}
