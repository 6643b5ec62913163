package curve_test

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
)

func TestGeneratorOnCurve(t *testing.T) {
	g := curve.Generator()
	assert.True(t, g.IsOnCurve())
	assert.True(t, g.InCorrectSubgroup())
}

func TestIdentityRejectedBySubgroupCheck(t *testing.T) {
	id := curve.Identity()
	assert.True(t, id.IsOnCurve())
	assert.True(t, id.IsIdentity())
	// the identity is an explicitly rejected input
	assert.False(t, id.InCorrectSubgroup())
	assert.Error(t, id.Validate())
}

func TestScalarBaseMulMatchesAddition(t *testing.T) {
	three := curve.NewScalarUint64(3)
	g := curve.Generator()
	sum := g.Add(g).Add(g)
	assert.True(t, curve.ScalarBaseMul(three).Equal(sum))
}

func TestScalarMulDistributes(t *testing.T) {
	a := sample.Scalar(rand.Reader)
	b := sample.Scalar(rand.Reader)
	sum := curve.NewScalar().Add(a, b)

	lhs := curve.ScalarBaseMul(sum)
	rhs := curve.ScalarBaseMul(a).Add(curve.ScalarBaseMul(b))
	assert.True(t, lhs.Equal(rhs))
}

func TestScalarMulZeroIsIdentity(t *testing.T) {
	p := curve.ScalarBaseMul(sample.Scalar(rand.Reader))
	assert.True(t, p.ScalarMul(curve.NewScalar()).IsIdentity())
}

func TestPointEncodingRoundTrip(t *testing.T) {
	p := curve.ScalarBaseMul(sample.Scalar(rand.Reader))
	raw, err := p.MarshalBinary()
	require.NoError(t, err)
	var q curve.Point
	require.NoError(t, q.UnmarshalBinary(raw))
	assert.True(t, p.Equal(q))
}

func TestNewPointRejectsOffCurve(t *testing.T) {
	g := curve.Generator()
	x := g.X()
	_, err := curve.NewPoint(x, x)
	assert.ErrorIs(t, err, curve.ErrNotOnCurve)
}

func TestScalarRange(t *testing.T) {
	_, err := curve.NewScalar().SetBigInt(curve.Order())
	assert.ErrorIs(t, err, curve.ErrScalarRange)

	max := curve.Order()
	max.Sub(max, big.NewInt(1))
	_, err = curve.NewScalar().SetBigInt(max)
	assert.NoError(t, err)
}

func TestScalarBytesRoundTrip(t *testing.T) {
	s := sample.Scalar(rand.Reader)
	b := s.Bytes()
	got, err := curve.NewScalar().SetBytes(b[:])
	require.NoError(t, err)
	assert.True(t, s.Equal(got))
}

func TestScalarBaseRoundTrip(t *testing.T) {
	s := sample.Scalar(rand.Reader)
	back, err := curve.ScalarFromBase(s.Base())
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}

func TestInvert(t *testing.T) {
	s := sample.Scalar(rand.Reader)
	if s.IsZero() {
		t.Skip("sampled zero")
	}
	inv := curve.NewScalar().Invert(s)
	one := curve.NewScalar().Mul(s, inv)
	assert.True(t, one.Equal(curve.NewScalarUint64(1)))
}

func TestZeroize(t *testing.T) {
	s := sample.Scalar(rand.Reader)
	s.Zeroize()
	assert.True(t, s.IsZero())
}
