// Package sample provides uniform sampling of scalars, base field elements
// and points from a cryptographically secure source.
package sample

import (
	"crypto/rand"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
)

// Scalar samples a uniform element of the scalar field.
func Scalar(r io.Reader) *curve.Scalar {
	v, err := rand.Int(r, curve.Order())
	if err != nil {
		panic("sample: rng failure: " + err.Error())
	}
	s, err := curve.NewScalar().SetBigInt(v)
	if err != nil {
		// rand.Int guarantees v < order
		panic("sample: " + err.Error())
	}
	return s
}

// BaseElement samples a uniform element of the base field. Used for
// encryption nonces.
func BaseElement(r io.Reader) fr.Element {
	v, err := rand.Int(r, fr.Modulus())
	if err != nil {
		panic("sample: rng failure: " + err.Error())
	}
	var e fr.Element
	e.SetBigInt(v)
	return e
}

// ScalarPointPair samples a secret scalar together with its public point
// sk·G. Used for ephemeral Diffie-Hellman keypairs.
func ScalarPointPair(r io.Reader) (*curve.Scalar, curve.Point) {
	sk := Scalar(r)
	return sk, curve.ScalarBaseMul(sk)
}
