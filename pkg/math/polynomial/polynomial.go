// Package polynomial implements secret-sharing polynomials over the
// BabyJubJub scalar field, together with Lagrange interpolation weights.
package polynomial

import (
	"io"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
)

// Polynomial represents f(X) = a₀ + a₁⋅X + … + a₍ₜ₋₁₎⋅X^(t-1).
//
// The coefficients are secrets: callers must Zeroize the polynomial once the
// shares have been distributed.
type Polynomial struct {
	coefficients []*curve.Scalar
}

// NewPolynomial generates f(X) = constant + a₁⋅X + … + a₍ₜ₋₁₎⋅X^(t-1) with
// uniform random non-constant coefficients and degree t-1 for threshold t.
//
// A nil constant is interpreted as 0.
func NewPolynomial(degree int, constant *curve.Scalar, rand io.Reader) *Polynomial {
	var p Polynomial
	p.coefficients = make([]*curve.Scalar, degree+1)

	if constant == nil {
		constant = curve.NewScalar()
	}
	p.coefficients[0] = curve.NewScalar().Set(constant)

	for i := 1; i <= degree; i++ {
		p.coefficients[i] = sample.Scalar(rand)
	}
	return &p
}

// Evaluate evaluates the polynomial at the given index using Horner's
// method. Evaluating at 0 would return the secret itself and is a bug.
func (p *Polynomial) Evaluate(index *curve.Scalar) *curve.Scalar {
	if index.IsZero() {
		panic("polynomial: attempt to leak secret")
	}
	result := curve.NewScalar()
	// reverse order: bₙ₋₁ = bₙ·x + aₙ₋₁
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result.MulAdd(result, index, p.coefficients[i])
	}
	return result
}

// Constant returns a reference to the constant coefficient, the shared
// secret.
func (p *Polynomial) Constant() *curve.Scalar {
	return p.coefficients[0]
}

// Coefficients returns the coefficient slice. Sensitive data; use with care.
func (p *Polynomial) Coefficients() []*curve.Scalar {
	return p.coefficients
}

// Degree is the highest power of the polynomial.
func (p *Polynomial) Degree() int {
	return len(p.coefficients) - 1
}

// Zeroize wipes all coefficients in place.
func (p *Polynomial) Zeroize() {
	for _, c := range p.coefficients {
		c.Zeroize()
	}
}
