package polynomial_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/polynomial"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/party"
)

func TestEvaluateConstantPolynomial(t *testing.T) {
	secret := curve.NewScalarUint64(42)
	p := polynomial.NewPolynomial(0, secret, rand.Reader)
	got := p.Evaluate(curve.NewScalarUint64(7))
	assert.True(t, secret.Equal(got))
}

func TestEvaluatePanicsAtZero(t *testing.T) {
	p := polynomial.NewPolynomial(2, nil, rand.Reader)
	assert.Panics(t, func() { p.Evaluate(curve.NewScalar()) })
}

func TestLagrangeReconstructsSecret(t *testing.T) {
	const (
		threshold = 3
		numPeers  = 5
	)
	secret := sample.Scalar(rand.Reader)
	p := polynomial.NewPolynomial(threshold-1, secret, rand.Reader)

	shares := make([]*curve.Scalar, numPeers)
	for i := 0; i < numPeers; i++ {
		shares[i] = p.Evaluate(party.ID(i).ShareIndex())
	}

	// every 3-subset of the 5 shares reconstructs the secret
	subsets := [][]party.ID{
		{0, 1, 2}, {0, 1, 3}, {0, 2, 4}, {1, 3, 4}, {2, 3, 4},
	}
	for _, ids := range subsets {
		coeffs, err := polynomial.Lagrange(ids, threshold, numPeers)
		require.NoError(t, err)

		sum := curve.NewScalar()
		tmp := curve.NewScalar()
		for _, id := range ids {
			tmp.Mul(shares[id], coeffs[id])
			sum.Add(sum, tmp)
		}
		assert.True(t, secret.Equal(sum), "subset %v", ids)
	}
}

func TestLagrangeZeroOutsideSubset(t *testing.T) {
	coeffs, err := polynomial.Lagrange([]party.ID{0, 2}, 2, 3)
	require.NoError(t, err)
	require.Len(t, coeffs, 3)
	assert.False(t, coeffs[0].IsZero())
	assert.True(t, coeffs[1].IsZero())
	assert.False(t, coeffs[2].IsZero())
}

func TestLagrangeDuplicateIDs(t *testing.T) {
	_, err := polynomial.Lagrange([]party.ID{1, 1}, 2, 3)
	assert.ErrorIs(t, err, polynomial.ErrDuplicateIDs)
}

func TestLagrangeInvalidThreshold(t *testing.T) {
	_, err := polynomial.Lagrange([]party.ID{0, 1, 2}, 2, 3)
	assert.ErrorIs(t, err, polynomial.ErrInvalidThreshold)
}

func TestLagrangeIDOutOfRange(t *testing.T) {
	_, err := polynomial.Lagrange([]party.ID{0, 3}, 2, 3)
	assert.ErrorIs(t, err, polynomial.ErrIDOutOfRange)
}

func TestZeroizeWipesCoefficients(t *testing.T) {
	p := polynomial.NewPolynomial(2, sample.Scalar(rand.Reader), rand.Reader)
	p.Zeroize()
	for _, c := range p.Coefficients() {
		assert.True(t, c.IsZero())
	}
}
