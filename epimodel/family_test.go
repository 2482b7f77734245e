package epimodel

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

func TestNegBinomNormalizes(t *testing.T) {

	fam := NewFamily(NegBinomFamily)

	for _, c := range []struct{ mean, phi float64 }{
		{5, 2},
		{0.5, 10},
		{40, 0.7},
	} {
		var tot float64
		for y := 0.0; y < 5000; y++ {
			tot += math.Exp(fam.LogPmf(y, c.mean, c.phi))
		}
		if !scalarClose(tot, 1, 1e-8) {
			t.Errorf("pmf(mean=%v, phi=%v) sums to %v", c.mean, c.phi, tot)
		}
	}
}

func TestNegBinomMoments(t *testing.T) {

	fam := NewFamily(NegBinomFamily)
	mean, phi := 8.0, 3.0

	var m1, m2 float64
	for y := 0.0; y < 5000; y++ {
		p := math.Exp(fam.LogPmf(y, mean, phi))
		m1 += y * p
		m2 += y * y * p
	}

	if !scalarClose(m1, mean, 1e-6) {
		t.Errorf("mean = %v, want %v", m1, mean)
	}
	wantVar := mean + mean*mean/phi
	if !scalarClose(m2-m1*m1, wantVar, 1e-5) {
		t.Errorf("variance = %v, want %v", m2-m1*m1, wantVar)
	}
}

func TestNegBinomPoissonLimit(t *testing.T) {

	nb := NewFamily(NegBinomFamily)
	po := NewFamily(PoissonFamily)

	// With vanishing overdispersion the two families agree.
	for y := 0.0; y < 30; y++ {
		a := nb.LogPmf(y, 6, 1e8)
		b := po.LogPmf(y, 6, 0)
		if !scalarClose(a, b, 1e-4) {
			t.Errorf("y=%v: negbinom %v != poisson %v", y, a, b)
		}
	}
}

func TestInvalidMeanRejects(t *testing.T) {

	for _, fam := range []*Family{NewFamily(NegBinomFamily), NewFamily(PoissonFamily)} {
		for _, mean := range []float64{0, -1, math.Inf(1), math.NaN()} {
			if ll := fam.LogPmf(3, mean, 1); !math.IsInf(ll, -1) {
				t.Errorf("%s: mean %v gave %v, want -Inf", fam.Name, mean, ll)
			}
		}
	}
	if ll := NewFamily(NegBinomFamily).LogPmf(3, 2, -1); !math.IsInf(ll, -1) {
		t.Errorf("negative dispersion gave %v, want -Inf", ll)
	}
}

func TestNegBinomRandMoments(t *testing.T) {

	fam := NewFamily(NegBinomFamily)
	rng := rand.New(rand.NewSource(12345))

	mean, phi := 5.0, 2.0
	n := 200000
	var m1, m2 float64
	for i := 0; i < n; i++ {
		y := fam.Rand(mean, phi, rng)
		m1 += y
		m2 += y * y
	}
	m1 /= float64(n)
	m2 /= float64(n)

	if !scalarClose(m1, mean, 0.1) {
		t.Errorf("sample mean %v, want %v", m1, mean)
	}
	wantVar := mean + mean*mean/phi
	if !scalarClose(m2-m1*m1, wantVar, 0.8) {
		t.Errorf("sample variance %v, want %v", m2-m1*m1, wantVar)
	}
}

func TestPriors(t *testing.T) {

	np := NormalPrior(0.3, 0.1)
	if !scalarClose(np(0.3+0.05), np(0.3-0.05), 1e-12) {
		t.Errorf("normal prior not symmetric about its mean")
	}
	if np(0.3) <= np(0.5) {
		t.Errorf("normal prior not peaked at its mean")
	}

	ep := ExponentialPrior(5)
	if ep(0.1) <= ep(0.5) {
		t.Errorf("exponential prior not decreasing")
	}
	if !math.IsInf(ep(-1), -1) {
		t.Errorf("exponential prior finite on negative support")
	}
}

func TestTruncNormalInit(t *testing.T) {

	rng := rand.New(rand.NewSource(99))
	draw := TruncNormalInit(2, 10, 1, 10)
	for i := 0; i < 1000; i++ {
		x := draw(rng)
		if x < 1 || x > 10 {
			t.Fatalf("draw %v outside [1, 10]", x)
		}
	}
}

func TestLogPrior(t *testing.T) {

	params := []Parameter{
		{Name: "a", Min: 0, Max: 1, LogPrior: NormalPrior(0.5, 0.2)},
		{Name: "b", Min: 0, Max: math.Inf(1), LogPrior: ExponentialPrior(1)},
	}

	if lp := LogPrior(params, []float64{0.5, 1}); math.IsInf(lp, 0) || math.IsNaN(lp) {
		t.Errorf("in-domain point has log prior %v", lp)
	}
	if lp := LogPrior(params, []float64{1.5, 1}); !math.IsInf(lp, -1) {
		t.Errorf("out-of-domain point has log prior %v, want -Inf", lp)
	}
}
