// Package curve implements the BabyJubJub twisted-Edwards group used by the
// threshold OPRF protocol.
//
// Points live over the bn254 scalar field (the BabyJubJub base field, fr in
// gnark-crypto terms); scalars live in the prime-order subgroup's scalar
// field. The identity is (0,1). All ingestion paths range-check field
// elements and validate curve/subgroup membership.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

var (
	// ErrNotOnCurve is returned when a point fails the curve equation.
	ErrNotOnCurve = errors.New("curve: point is not on the curve")
	// ErrNotInSubgroup is returned when a point is on the curve but outside
	// the prime-order subgroup, or is the identity.
	ErrNotInSubgroup = errors.New("curve: point is not in the prime-order subgroup")
	// ErrBaseRange is returned when bytes do not encode a canonical base
	// field element.
	ErrBaseRange = errors.New("curve: base field element out of range")
)

var edwards = twistededwards.GetEdwardsCurve()

// Order returns the order of the prime-order subgroup.
func Order() *big.Int {
	return new(big.Int).Set(&edwards.Order)
}

// Point is an affine BabyJubJub point.
//
// The zero value is the identity (0,1) after a call to Identity; an
// uninitialized Point is (0,0) and not a valid group element.
type Point struct {
	p twistededwards.PointAffine
}

// Generator returns the subgroup generator G.
func Generator() Point {
	return Point{p: edwards.Base}
}

// Identity returns the neutral element (0,1).
func Identity() Point {
	var p twistededwards.PointAffine
	p.X.SetZero()
	p.Y.SetOne()
	return Point{p: p}
}

// NewPoint constructs a point from affine coordinates, rejecting points that
// do not satisfy the curve equation. Subgroup membership is checked
// separately via InCorrectSubgroup.
func NewPoint(x, y fr.Element) (Point, error) {
	var p twistededwards.PointAffine
	p.X.Set(&x)
	p.Y.Set(&y)
	pt := Point{p: p}
	if !pt.IsOnCurve() {
		return Point{}, ErrNotOnCurve
	}
	return pt, nil
}

// X returns the affine x coordinate.
func (p Point) X() fr.Element { return p.p.X }

// Y returns the affine y coordinate.
func (p Point) Y() fr.Element { return p.p.Y }

// Add returns p + q.
func (p Point) Add(q Point) Point {
	var r twistededwards.PointAffine
	r.Add(&p.p, &q.p)
	return Point{p: r}
}

// Neg returns -p.
func (p Point) Neg() Point {
	var r twistededwards.PointAffine
	r.Neg(&p.p)
	return Point{p: r}
}

// ScalarMul returns k·p.
func (p Point) ScalarMul(k *Scalar) Point {
	if k.IsZero() {
		return Identity()
	}
	var r twistededwards.PointAffine
	var v big.Int
	r.ScalarMultiplication(&p.p, k.BigInt(&v))
	return Point{p: r}
}

// ScalarBaseMul returns k·G.
func ScalarBaseMul(k *Scalar) Point {
	return Generator().ScalarMul(k)
}

// scalarMulBig multiplies by an arbitrary non-negative integer. Used for the
// subgroup check, where the multiplier is the subgroup order itself.
func (p Point) scalarMulBig(k *big.Int) Point {
	if k.Sign() == 0 {
		return Identity()
	}
	var r twistededwards.PointAffine
	r.ScalarMultiplication(&p.p, k)
	return Point{p: r}
}

// IsOnCurve reports whether p satisfies the twisted-Edwards equation.
func (p Point) IsOnCurve() bool {
	return p.p.IsOnCurve()
}

// IsIdentity reports whether p is the neutral element (0,1).
func (p Point) IsIdentity() bool {
	return p.p.X.IsZero() && p.p.Y.IsOne()
}

// InCorrectSubgroup reports whether p generates the prime-order subgroup.
// The identity is an explicitly rejected input: contributions carrying the
// neutral element are invalid even though it trivially has the right order.
func (p Point) InCorrectSubgroup() bool {
	if p.IsIdentity() {
		return false
	}
	return p.scalarMulBig(&edwards.Order).IsIdentity()
}

// Validate combines the on-curve and subgroup checks performed on every
// contribution ingestion.
func (p Point) Validate() error {
	if !p.IsOnCurve() {
		return ErrNotOnCurve
	}
	if !p.InCorrectSubgroup() {
		return ErrNotInSubgroup
	}
	return nil
}

// Equal reports whether p and q are the same affine point.
func (p Point) Equal(q Point) bool {
	return p.p.X.Equal(&q.p.X) && p.p.Y.Equal(&q.p.Y)
}

// MarshalBinary encodes p as x||y, 64 bytes big-endian.
func (p Point) MarshalBinary() ([]byte, error) {
	out := make([]byte, 2*fr.Bytes)
	x := p.p.X.Bytes()
	y := p.p.Y.Bytes()
	copy(out[:fr.Bytes], x[:])
	copy(out[fr.Bytes:], y[:])
	return out, nil
}

// UnmarshalBinary decodes x||y and validates the curve equation.
func (p *Point) UnmarshalBinary(data []byte) error {
	if len(data) != 2*fr.Bytes {
		return fmt.Errorf("curve: invalid point encoding length %d", len(data))
	}
	x, err := BaseFromBytes(data[:fr.Bytes])
	if err != nil {
		return err
	}
	y, err := BaseFromBytes(data[fr.Bytes:])
	if err != nil {
		return err
	}
	pt, err := NewPoint(x, y)
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

func (p Point) String() string {
	var x, y big.Int
	p.p.X.BigInt(&x)
	p.p.Y.BigInt(&y)
	return fmt.Sprintf("(%s, %s)", x.String(), y.String())
}

// BaseFromBytes decodes a canonical big-endian base field element, rejecting
// values >= the base field modulus.
func BaseFromBytes(b []byte) (fr.Element, error) {
	var e fr.Element
	if err := e.SetBytesCanonical(b); err != nil {
		return fr.Element{}, ErrBaseRange
	}
	return e, nil
}

// BaseFromBig decodes a base field element from an integer, rejecting
// values outside [0, p) instead of reducing them.
func BaseFromBig(v *big.Int) (fr.Element, error) {
	if v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return fr.Element{}, ErrBaseRange
	}
	var e fr.Element
	e.SetBigInt(v)
	return e, nil
}
