package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrScalarRange is returned when an encoding or field element does not fit
// into the scalar field [0, order).
var ErrScalarRange = errors.New("curve: scalar out of range")

// ScalarBytes is the length of the canonical big-endian scalar encoding.
const ScalarBytes = 32

// Scalar is an element of the BabyJubJub scalar field, i.e. the integers
// modulo the prime subgroup order.
//
// Operations follow the mutate-receiver-and-return style so they can be
// chained. Arithmetic runs over math/big reduced after every operation, the
// same way gnark-crypto's twisted-Edwards signing code treats subgroup
// scalars.
type Scalar struct {
	v big.Int
}

// NewScalar returns the scalar 0.
func NewScalar() *Scalar {
	return &Scalar{}
}

// NewScalarUint64 returns the scalar u mod order.
func NewScalarUint64(u uint64) *Scalar {
	var s Scalar
	s.v.SetUint64(u)
	s.v.Mod(&s.v, &edwards.Order)
	return &s
}

// Set sets s = x and returns s.
func (s *Scalar) Set(x *Scalar) *Scalar {
	s.v.Set(&x.v)
	return s
}

// SetUint64 sets s = u mod order and returns s.
func (s *Scalar) SetUint64(u uint64) *Scalar {
	s.v.SetUint64(u)
	s.v.Mod(&s.v, &edwards.Order)
	return s
}

// SetBigInt sets s to v, rejecting values outside [0, order).
func (s *Scalar) SetBigInt(v *big.Int) (*Scalar, error) {
	if v.Sign() < 0 || v.Cmp(&edwards.Order) >= 0 {
		return nil, ErrScalarRange
	}
	s.v.Set(v)
	return s, nil
}

// SetBytes decodes the canonical 32-byte big-endian encoding, rejecting
// non-canonical values.
func (s *Scalar) SetBytes(b []byte) (*Scalar, error) {
	if len(b) != ScalarBytes {
		return nil, fmt.Errorf("curve: invalid scalar encoding length %d", len(b))
	}
	var v big.Int
	v.SetBytes(b)
	return s.SetBigInt(&v)
}

// Add sets s = a + b and returns s.
func (s *Scalar) Add(a, b *Scalar) *Scalar {
	s.v.Add(&a.v, &b.v)
	s.v.Mod(&s.v, &edwards.Order)
	return s
}

// Sub sets s = a - b and returns s.
func (s *Scalar) Sub(a, b *Scalar) *Scalar {
	s.v.Sub(&a.v, &b.v)
	s.v.Mod(&s.v, &edwards.Order)
	return s
}

// Mul sets s = a * b and returns s.
func (s *Scalar) Mul(a, b *Scalar) *Scalar {
	s.v.Mul(&a.v, &b.v)
	s.v.Mod(&s.v, &edwards.Order)
	return s
}

// MulAdd sets s = x*y + z and returns s. Used for Horner evaluation.
func (s *Scalar) MulAdd(x, y, z *Scalar) *Scalar {
	var t big.Int
	t.Mul(&x.v, &y.v)
	t.Add(&t, &z.v)
	t.Mod(&t, &edwards.Order)
	s.v.Set(&t)
	return s
}

// Neg sets s = -a and returns s.
func (s *Scalar) Neg(a *Scalar) *Scalar {
	s.v.Neg(&a.v)
	s.v.Mod(&s.v, &edwards.Order)
	return s
}

// Invert sets s = a⁻¹ and returns s. Panics on zero: callers guard against
// zero denominators (Lagrange coefficients require pairwise-distinct ids).
func (s *Scalar) Invert(a *Scalar) *Scalar {
	if s.v.ModInverse(&a.v, &edwards.Order) == nil {
		panic("curve: inverse of zero scalar")
	}
	return s
}

// IsZero reports whether s == 0.
func (s *Scalar) IsZero() bool {
	return s.v.Sign() == 0
}

// Equal reports whether s == x.
func (s *Scalar) Equal(x *Scalar) bool {
	return s.v.Cmp(&x.v) == 0
}

// BigInt stores the value of s into v and returns v.
func (s *Scalar) BigInt(v *big.Int) *big.Int {
	return v.Set(&s.v)
}

// Bytes returns the canonical 32-byte big-endian encoding.
func (s *Scalar) Bytes() [ScalarBytes]byte {
	var out [ScalarBytes]byte
	s.v.FillBytes(out[:])
	return out
}

// Base lifts s into the base field. Always succeeds: the subgroup order is
// smaller than the base field modulus.
func (s *Scalar) Base() fr.Element {
	var e fr.Element
	e.SetBigInt(&s.v)
	return e
}

// ScalarFromBase interprets a base field element as a scalar. Fails with
// ErrScalarRange iff the value does not fit, which is how decryption detects
// garbage plaintexts.
func ScalarFromBase(e fr.Element) (*Scalar, error) {
	var v big.Int
	e.BigInt(&v)
	return NewScalar().SetBigInt(&v)
}

// Zeroize best-effort wipes the scalar value in place. Secret scalars
// (polynomial coefficients, shares, ephemeral DH keys) call this when
// dropped.
func (s *Scalar) Zeroize() {
	bits := s.v.Bits()
	for i := range bits {
		bits[i] = 0
	}
	s.v.SetUint64(0)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Scalar) MarshalBinary() ([]byte, error) {
	b := s.Bytes()
	return b[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	_, err := s.SetBytes(data)
	return err
}

func (s *Scalar) String() string {
	return s.v.String()
}
