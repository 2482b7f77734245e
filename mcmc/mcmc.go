// Package mcmc draws posterior samples from an epimodel.Model with adaptive
// random-walk Metropolis sampling.  Parameters are updated one at a time
// with Gaussian proposals reflected at the declared domain bounds; proposal
// scales adapt during warmup toward a component-wise acceptance rate near
// 0.44.  Chains are mutually independent and run concurrently, each with
// its own seeded random source; within a chain the evaluations are strictly
// sequential.
package mcmc

import (
	"fmt"
	"log"
	"math"
	"sync"

	"golang.org/x/exp/rand"

	"github.com/epifit/epifit/epimodel"
)

// Config holds the sampler settings for one inference run.
type Config struct {

	// Chains is the number of independent chains.
	Chains int

	// Warmup is the number of adaptation sweeps per chain, discarded
	// from the output.
	Warmup int

	// Samples is the number of retained draws per chain.
	Samples int

	// Thin keeps every Thin-th post-warmup sweep.
	Thin int

	// Seed feeds the per-chain random sources.
	Seed uint64

	// AdaptEvery is the number of warmup sweeps between proposal-scale
	// updates.
	AdaptEvery int

	// InitAttempts bounds the search for a starting point with finite
	// posterior density.
	InitAttempts int
}

// DefaultConfig returns the default sampler settings: 4 chains, 1000 warmup
// sweeps, and 1000 retained draws per chain.
func DefaultConfig() Config {
	return Config{
		Chains:       4,
		Warmup:       1000,
		Samples:      1000,
		Thin:         1,
		Seed:         1,
		AdaptEvery:   100,
		InitAttempts: 100,
	}
}

// Sampler draws from the posterior of a model.
type Sampler struct {
	model  epimodel.Model
	cfg    Config
	logger *log.Logger
}

// NewSampler returns a sampler for the given model.
func NewSampler(model epimodel.Model, cfg Config) (*Sampler, error) {

	if cfg.Chains <= 0 || cfg.Samples <= 0 || cfg.Warmup < 0 {
		return nil, fmt.Errorf("mcmc: invalid sampler configuration: chains=%d warmup=%d samples=%d",
			cfg.Chains, cfg.Warmup, cfg.Samples)
	}
	if cfg.Thin <= 0 {
		cfg.Thin = 1
	}
	if cfg.AdaptEvery <= 0 {
		cfg.AdaptEvery = DefaultConfig().AdaptEvery
	}
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = DefaultConfig().InitAttempts
	}

	params := model.Parameters()
	if len(params) == 0 {
		return nil, fmt.Errorf("mcmc: model has no free parameters")
	}
	for i := range params {
		if err := params[i].Validate(); err != nil {
			return nil, err
		}
	}

	return &Sampler{model: model, cfg: cfg}, nil
}

// Log takes a Logger value that will be used to report sampling progress.
func (s *Sampler) Log(logger *log.Logger) *Sampler {
	s.logger = logger
	return s
}

// Run draws posterior samples from the model, running the configured number
// of chains concurrently.  The returned result pools the post-warmup draws
// of all chains and exposes per-parameter convergence diagnostics.
func (s *Sampler) Run() (*Result, error) {

	params := s.model.Parameters()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	if d, ok := s.model.(epimodel.Deriver); ok {
		names = append(names, d.DerivedNames()...)
	}

	chains := make([][][]float64, s.cfg.Chains)
	accept := make([]float64, s.cfg.Chains)
	errs := make([]error, s.cfg.Chains)

	var wg sync.WaitGroup
	wg.Add(s.cfg.Chains)
	for c := 0; c < s.cfg.Chains; c++ {
		go func(c int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(s.cfg.Seed + 104729*uint64(c)))
			chains[c], accept[c], errs[c] = s.runChain(c, rng)
		}(c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		names:  names,
		npar:   len(params),
		chains: chains,
		accept: accept,
	}, nil
}

// runChain runs one chain to completion and returns its retained draws and
// post-warmup acceptance rate.
func (s *Sampler) runChain(c int, rng *rand.Rand) ([][]float64, float64, error) {

	params := s.model.Parameters()
	np := len(params)

	theta, lp, err := s.initPoint(params, rng)
	if err != nil {
		return nil, 0, fmt.Errorf("mcmc: chain %d: %v", c, err)
	}

	// Initial proposal scales: a modest fraction of the bounded domain
	// width, or of the starting magnitude on half-open domains.
	scale := make([]float64, np)
	for i, p := range params {
		if !math.IsInf(p.Max, 1) {
			scale[i] = (p.Max - p.Min) / 20
		} else {
			scale[i] = math.Max(math.Abs(theta[i]), 1) / 10
		}
	}

	var deriver epimodel.Deriver
	nder := 0
	if d, ok := s.model.(epimodel.Deriver); ok {
		deriver = d
		nder = len(d.DerivedNames())
	}

	draws := make([][]float64, 0, s.cfg.Samples)
	accWin := make([]int, np)
	var accPost, totPost int

	total := s.cfg.Warmup + s.cfg.Samples*s.cfg.Thin
	for iter := 0; iter < total; iter++ {
		warm := iter < s.cfg.Warmup

		for i := range params {
			old := theta[i]
			theta[i] = reflect(old+rng.NormFloat64()*scale[i], params[i].Min, params[i].Max)
			lpNew := s.logPost(theta)
			if lpNew >= lp || rng.Float64() < math.Exp(lpNew-lp) {
				lp = lpNew
				if warm {
					accWin[i]++
				} else {
					accPost++
				}
			} else {
				theta[i] = old
			}
			if !warm {
				totPost++
			}
		}

		if warm && (iter+1)%s.cfg.AdaptEvery == 0 {
			for i := range scale {
				rate := float64(accWin[i]) / float64(s.cfg.AdaptEvery)
				if rate < 0.3 {
					scale[i] *= 0.8
				} else if rate > 0.5 {
					scale[i] *= 1.25
				}
				accWin[i] = 0
			}
		}

		if !warm && (iter-s.cfg.Warmup+1)%s.cfg.Thin == 0 {
			rec := make([]float64, np+nder)
			copy(rec, theta)
			if deriver != nil {
				copy(rec[np:], deriver.Derived(theta))
			}
			draws = append(draws, rec)
		}

		if s.logger != nil && (iter+1)%500 == 0 {
			s.logger.Printf("chain %d: sweep %d/%d logpost=%f", c, iter+1, total, lp)
		}
	}

	return draws, float64(accPost) / float64(totPost), nil
}

// initPoint draws starting values from the priors until the posterior
// density is finite.
func (s *Sampler) initPoint(params []epimodel.Parameter, rng *rand.Rand) ([]float64, float64, error) {

	theta := make([]float64, len(params))
	for try := 0; try < s.cfg.InitAttempts; try++ {
		for i, p := range params {
			theta[i] = p.Init(rng)
		}
		lp := s.logPost(theta)
		if !math.IsInf(lp, -1) && !math.IsNaN(lp) {
			return theta, lp, nil
		}
	}

	return nil, 0, fmt.Errorf("no starting point with finite posterior density after %d attempts", s.cfg.InitAttempts)
}

// logPost is the unnormalized posterior log-density.
func (s *Sampler) logPost(theta []float64) float64 {
	lp := epimodel.LogPrior(s.model.Parameters(), theta)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + s.model.LogLike(theta)
}

// reflect folds a proposal back into [min, max].  On half-open domains only
// the finite bound reflects.
func reflect(x, min, max float64) float64 {
	for x < min || x > max {
		if x < min {
			x = min + (min - x)
		}
		if x > max {
			x = max - (x - max)
		}
	}
	return x
}
