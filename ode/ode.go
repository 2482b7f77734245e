// Package ode integrates systems of ordinary differential equations with
// explicit Runge-Kutta methods defined by Butcher tableaux,
// https://en.wikipedia.org/wiki/Runge–Kutta_methods.  Methods with an
// embedded lower-order solution (e.g. Fehlberg 4(5)) support adaptive step
// control against relative/absolute error tolerances.
package ode

// Func evaluates the vector field at time t and state y, writing the
// derivative into dy.  It must be a pure function of (t, y): the integrator
// calls it repeatedly at intermediate points in arbitrary order.
type Func func(t float64, y, dy []float64)

// RungeKutta holds the butcherTableau which describes the Runge-Kutta method.
type RungeKutta struct {
	tableau butcherTableau
}

// butcherTableau describes the approximate solution, see
// https://en.wikipedia.org/wiki/Runge–Kutta_methods.  When weights holds two
// rows the difference between the rows gives an embedded error estimate.
type butcherTableau struct {
	stages  int
	weights [][]float64
	nodes   []float64
	coeffs  [][]float64
	order   float64
}

// Adaptive reports whether the method carries an embedded error estimate
// usable for adaptive step control.
func (rk *RungeKutta) Adaptive() bool {
	return len(rk.tableau.weights) == 2
}

// Stages returns the number of derivative evaluations per step.
func (rk *RungeKutta) Stages() int {
	return rk.tableau.stages
}

// step advances y from t by h, writing the result into ynew and the embedded
// error estimate into errv (left zero for non-adaptive methods).  The k
// and work buffers must have stages and len(y) entries respectively.
func (rk *RungeKutta) step(f Func, t, h float64, y, ynew, errv []float64, k [][]float64, work []float64) {
	tb := &rk.tableau

	for i := 0; i < tb.stages; i++ {
		copy(work, y)
		for j, a := range tb.coeffs[i] {
			if a == 0 {
				continue
			}
			for m := range work {
				work[m] += h * a * k[j][m]
			}
		}
		f(t+h*tb.nodes[i], work, k[i])
	}

	copy(ynew, y)
	for m := range errv {
		errv[m] = 0
	}
	for i := 0; i < tb.stages; i++ {
		w := tb.weights[0][i]
		for m := range ynew {
			ynew[m] += h * w * k[i][m]
		}
		if len(tb.weights) == 2 {
			d := tb.weights[0][i] - tb.weights[1][i]
			for m := range errv {
				errv[m] += h * d * k[i][m]
			}
		}
	}
}

// NewFehlberg45 returns the Runge-Kutta-Fehlberg 4(5) method,
// https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method.
func NewFehlberg45() *RungeKutta {
	var tb butcherTableau
	tb.stages = 6
	tb.order = 5
	tb.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	tb.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	tb.coeffs = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	return &RungeKutta{tb}
}

// NewRK4 returns the classic fourth-order Runge-Kutta method.
func NewRK4() *RungeKutta {
	var tb butcherTableau
	tb.stages = 4
	tb.order = 4
	tb.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	tb.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	tb.coeffs = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	return &RungeKutta{tb}
}

// NewEuler returns the forward Euler method.
func NewEuler() *RungeKutta {
	var tb butcherTableau
	tb.stages = 1
	tb.order = 1
	tb.nodes = []float64{0}
	tb.weights = [][]float64{{1}}
	tb.coeffs = [][]float64{nil}
	return &RungeKutta{tb}
}
