package compartment

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NextGeneration builds the next-generation matrix K = F * V^-1 at the
// disease-free equilibrium (S_i = N_i, I_i = R_i = 0).  F is the Jacobian
// of the new-infection rates with respect to the infectious compartments
// and V the Jacobian of the removal rates.  K is a reporting quantity only;
// it plays no role in the likelihood.
func (m *TwoGroup) NextGeneration(p TwoGroupParams) *mat.Dense {

	c := m.contact

	// d(lambda_i * S_i)/dI_j at S_i = N_i.
	f := mat.NewDense(2, 2, []float64{
		p.Beta * c.At(0, 0), p.Beta * c.At(0, 1) * m.n1 / m.n2,
		p.Beta * c.At(1, 0) * m.n2 / m.n1, p.Beta * c.At(1, 1),
	})

	v := mat.NewDense(2, 2, []float64{
		p.Gamma1, 0,
		0, p.Gamma2,
	})

	var vinv, k mat.Dense
	if err := vinv.Inverse(v); err != nil {
		// A non-positive recovery rate makes V singular.  Report the
		// matrix as NaN rather than panicking, so a boundary draw
		// cannot take down a chain.
		nan := math.NaN()
		return mat.NewDense(2, 2, []float64{nan, nan, nan, nan})
	}
	k.Mul(f, &vinv)

	return &k
}

// R0 returns the basic reproduction number: the dominant eigenvalue of the
// next-generation matrix, from the closed-form roots of the characteristic
// polynomial x^2 - x*tr(K) + det(K).  The closed form holds only for the
// 2x2 case; more groups would need a general eigensolver.
func (m *TwoGroup) R0(p TwoGroupParams) float64 {

	k := m.NextGeneration(p)
	tr := mat.Trace(k)
	det := mat.Det(k)

	return (tr + math.Sqrt(tr*tr-4*det)) / 2
}

// DerivedNames returns the names of the per-draw derived quantities.
func (m *TwoGroup) DerivedNames() []string {
	return []string{"r0"}
}

// Derived evaluates the per-draw derived quantities.
func (m *TwoGroup) Derived(theta []float64) []float64 {
	p := m.Params(theta)
	return []float64{m.R0(p)}
}
