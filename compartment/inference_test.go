package compartment

import (
	"testing"

	"golang.org/x/exp/rand"

	"github.com/epifit/epifit/mcmc"
)

// TestSIRRoundTrip simulates case counts from known parameters and checks
// that posterior credible intervals recover the truth.
func TestSIRRoundTrip(t *testing.T) {

	if testing.Short() {
		t.Skip("skipping posterior sampling in short mode")
	}

	rng := rand.New(rand.NewSource(2024))
	truth := tutorialSIRParams()

	gen, err := NewSIR(1000, Days(100), nil)
	if err != nil {
		t.Fatal(err)
	}
	obs, err := gen.SimulateCounts(truth, rng)
	if err != nil {
		t.Fatal(err)
	}

	model, err := NewSIR(1000, Days(120), obs)
	if err != nil {
		t.Fatal(err)
	}

	cfg := mcmc.DefaultConfig()
	cfg.Chains = 2
	cfg.Warmup = 600
	cfg.Samples = 800
	cfg.Seed = 11

	s, err := mcmc.NewSampler(model, cfg)
	if err != nil {
		t.Fatal(err)
	}
	rslt, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range []struct {
		name  string
		truth float64
	}{
		{"beta", truth.Beta},
		{"gamma", truth.Gamma},
		{"r0", truth.Beta / truth.Gamma},
	} {
		lo, hi := rslt.CredibleInterval(c.name, 0.99)
		if c.truth < lo || c.truth > hi {
			t.Errorf("%s: 99%% interval (%v, %v) misses the truth %v", c.name, lo, hi, c.truth)
		}
	}

	for _, name := range []string{"beta", "gamma"} {
		if rh := rslt.Rhat(name); rh > 1.1 {
			t.Errorf("%s: Rhat = %v, want at most 1.1", name, rh)
		}
	}
}
