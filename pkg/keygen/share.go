// Package keygen implements the cryptographic primitives of the distributed
// key-generation and resharing protocol: secret-sharing polynomials with
// commitments, Diffie-Hellman based share encryption, and share
// accumulation.
package keygen

import (
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
)

// Share is a node's secret Shamir share of an OPRF key.
//
// The wrapper exists so the share is never logged or serialized by accident:
// String and Format render a redacted placeholder, and Zeroize wipes the
// value once the share leaves memory.
type Share struct {
	scalar *curve.Scalar
}

// NewShare wraps a scalar as a share. The wrapper takes ownership.
func NewShare(s *curve.Scalar) Share {
	return Share{scalar: s}
}

// ShareFromBytes decodes the canonical big-endian share encoding.
func ShareFromBytes(b []byte) (Share, error) {
	s, err := curve.NewScalar().SetBytes(b)
	if err != nil {
		return Share{}, err
	}
	return Share{scalar: s}, nil
}

// Scalar exposes the underlying secret. Use with care.
func (s Share) Scalar() *curve.Scalar {
	return s.scalar
}

// Bytes returns the canonical big-endian encoding used by the share store.
func (s Share) Bytes() []byte {
	b := s.scalar.Bytes()
	return b[:]
}

// Commit returns the share commitment s·G.
func (s Share) Commit() curve.Point {
	return curve.ScalarBaseMul(s.scalar)
}

// Zeroize wipes the share in place.
func (s Share) Zeroize() {
	if s.scalar != nil {
		s.scalar.Zeroize()
	}
}

func (s Share) String() string {
	return "Share(REDACTED)"
}

// AccumulateShares adds the provided shares together. Used after a DKG where
// every peer contributed a sharing of its own secret.
func AccumulateShares(shares []Share) Share {
	acc := curve.NewScalar()
	for _, s := range shares {
		acc.Add(acc, s.scalar)
	}
	return Share{scalar: acc}
}

// AccumulateLagrangeShares combines shares with the matching Lagrange
// weights. Used after a reshare, where only the producer subset contributed.
// The two slices must have equal length; this is checked at the call site.
func AccumulateLagrangeShares(shares []Share, lagrange []*curve.Scalar) Share {
	if len(shares) != len(lagrange) {
		panic("keygen: share and lagrange count mismatch")
	}
	acc := curve.NewScalar()
	tmp := curve.NewScalar()
	for i, s := range shares {
		tmp.Mul(s.scalar, lagrange[i])
		acc.Add(acc, tmp)
	}
	return Share{scalar: acc}
}

// AccumulatePoints adds the provided points. Used to fold per-producer share
// commitments into the combined commitment of a peer's new share.
func AccumulatePoints(points []curve.Point) curve.Point {
	acc := curve.Identity()
	for _, p := range points {
		acc = acc.Add(p)
	}
	return acc
}

// AccumulateLagrangePoints combines points with the matching Lagrange
// weights, the reshare variant of AccumulatePoints.
func AccumulateLagrangePoints(points []curve.Point, lagrange []*curve.Scalar) curve.Point {
	if len(points) != len(lagrange) {
		panic("keygen: point and lagrange count mismatch")
	}
	acc := curve.Identity()
	for i, p := range points {
		acc = acc.Add(p.ScalarMul(lagrange[i]))
	}
	return acc
}
