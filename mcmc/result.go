package mcmc

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/epifit/epifit/epimodel"
)

// Result holds the posterior draws of one inference run.  Each record
// contains the free parameters in sampling order followed by the model's
// derived quantities.
type Result struct {
	names  []string
	npar   int
	chains [][][]float64
	accept []float64
}

// Names returns the record field names: parameters, then derived quantities.
func (r *Result) Names() []string {
	return r.names
}

// NumChains returns the number of chains.
func (r *Result) NumChains() int {
	return len(r.chains)
}

// Chain returns the retained draws of chain c.
func (r *Result) Chain(c int) [][]float64 {
	return r.chains[c]
}

// Draws returns the post-warmup draws of all chains pooled.
func (r *Result) Draws() [][]float64 {
	var all [][]float64
	for _, ch := range r.chains {
		all = append(all, ch...)
	}
	return all
}

// AcceptRate returns the post-warmup acceptance rate of chain c.
func (r *Result) AcceptRate(c int) float64 {
	return r.accept[c]
}

// index resolves a record field name to its column.
func (r *Result) index(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	panic(fmt.Sprintf("mcmc: no parameter or derived quantity named %q", name))
}

// Series returns the pooled draws of one field.
func (r *Result) Series(name string) []float64 {
	j := r.index(name)
	var x []float64
	for _, ch := range r.chains {
		for _, rec := range ch {
			x = append(x, rec[j])
		}
	}
	return x
}

// chainSeries returns the draws of one field, per chain.
func (r *Result) chainSeries(name string) [][]float64 {
	j := r.index(name)
	out := make([][]float64, len(r.chains))
	for c, ch := range r.chains {
		x := make([]float64, len(ch))
		for i, rec := range ch {
			x[i] = rec[j]
		}
		out[c] = x
	}
	return out
}

// Mean returns the posterior mean of a field.
func (r *Result) Mean(name string) float64 {
	return stat.Mean(r.Series(name), nil)
}

// StdDev returns the posterior standard deviation of a field.
func (r *Result) StdDev(name string) float64 {
	return stat.StdDev(r.Series(name), nil)
}

// Quantile returns the posterior quantile of a field, with p in (0, 1).
func (r *Result) Quantile(name string, p float64) float64 {
	q, err := stats.Percentile(stats.Float64Data(r.Series(name)), 100*p)
	if err != nil {
		panic(fmt.Sprintf("mcmc: quantile %v of %s: %v", p, name, err))
	}
	return q
}

// CredibleInterval returns the central credible interval of a field at the
// given level, e.g. level 0.95 gives the 2.5% and 97.5% quantiles.
func (r *Result) CredibleInterval(name string, level float64) (float64, float64) {
	a := (1 - level) / 2
	return r.Quantile(name, a), r.Quantile(name, 1-a)
}

// Rhat returns the split-chain potential scale reduction factor for a
// field.  Values near 1 indicate the chains have mixed.
func (r *Result) Rhat(name string) float64 {

	var halves [][]float64
	for _, x := range r.chainSeries(name) {
		h := len(x) / 2
		if h < 2 {
			return math.NaN()
		}
		halves = append(halves, x[:h], x[h:h*2])
	}

	n := float64(len(halves[0]))
	var w float64
	means := make([]float64, len(halves))
	for i, x := range halves {
		means[i] = stat.Mean(x, nil)
		w += stat.Variance(x, nil)
	}
	w /= float64(len(halves))
	b := n * stat.Variance(means, nil)

	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// ESS returns the effective sample size of a field across all chains,
// using chain-averaged autocovariances and Geyer's initial positive
// sequence truncation.
func (r *Result) ESS(name string) float64 {

	series := r.chainSeries(name)
	m := len(series)
	n := len(series[0])
	if n < 4 {
		return math.NaN()
	}

	var w float64
	means := make([]float64, m)
	for i, x := range series {
		means[i] = stat.Mean(x, nil)
		w += stat.Variance(x, nil)
	}
	w /= float64(m)
	b := float64(n) * stat.Variance(means, nil)
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	if m == 1 {
		varPlus = w
	}
	if varPlus <= 0 {
		return math.NaN()
	}

	// Chain-averaged autocovariance at each lag.
	acov := func(t int) float64 {
		var s float64
		for i, x := range series {
			var a float64
			for k := 0; k+t < n; k++ {
				a += (x[k] - means[i]) * (x[k+t] - means[i])
			}
			s += a / float64(n)
		}
		return s / float64(m)
	}

	var sum float64
	prev := math.Inf(1)
	for t := 1; t+1 < n; t += 2 {
		rho0 := 1 - (w-acov(t))/varPlus
		rho1 := 1 - (w-acov(t+1))/varPlus
		pair := rho0 + rho1
		if pair < 0 {
			break
		}
		// Enforce monotone decrease of the paired sums.
		if pair > prev {
			pair = prev
		}
		prev = pair
		sum += pair
	}

	ess := float64(m*n) / (1 + 2*sum)
	if ess > float64(m*n) {
		ess = float64(m * n)
	}
	return ess
}

// Summary returns a table of posterior means, standard deviations, 95%
// credible intervals, and convergence diagnostics for every parameter and
// derived quantity.
func (r *Result) Summary() *epimodel.SummaryTable {

	k := len(r.names)
	mean := make([]float64, k)
	sd := make([]float64, k)
	lo := make([]float64, k)
	hi := make([]float64, k)
	rhat := make([]float64, k)
	ess := make([]float64, k)

	for i, name := range r.names {
		mean[i] = r.Mean(name)
		sd[i] = r.StdDev(name)
		lo[i], hi[i] = r.CredibleInterval(name, 0.95)
		rhat[i] = r.Rhat(name)
		ess[i] = r.ESS(name)
	}

	var acc float64
	for _, a := range r.accept {
		acc += a
	}
	acc /= float64(len(r.accept))

	ndraw := 0
	for _, ch := range r.chains {
		ndraw += len(ch)
	}

	return &epimodel.SummaryTable{
		Title:    "Posterior summary",
		ColNames: []string{"Name", "Mean", "SD", "2.5%", "97.5%", "Rhat", "ESS"},
		Cols: []interface{}{
			append([]string{}, r.names...),
			mean, sd, lo, hi, rhat, ess,
		},
		ColFmt: []epimodel.Fmter{
			epimodel.StringFmt, epimodel.FloatFmt, epimodel.FloatFmt,
			epimodel.FloatFmt, epimodel.FloatFmt, epimodel.FloatFmt,
			epimodel.FloatFmt,
		},
		Top: []string{
			fmt.Sprintf("Chains: %d", len(r.chains)),
			fmt.Sprintf("Draws: %d", ndraw),
		},
		Msg: []string{
			fmt.Sprintf("Mean acceptance rate: %.2f", acc),
		},
	}
}
