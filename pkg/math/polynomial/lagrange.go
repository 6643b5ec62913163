package polynomial

import (
	"errors"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/party"
)

var (
	// ErrDuplicateIDs is returned when the interpolation ids are not
	// pairwise distinct. Duplicate ids would divide by zero and leak the
	// interpolation structure.
	ErrDuplicateIDs = errors.New("polynomial: interpolation ids are not pairwise distinct")
	// ErrInvalidThreshold is returned when the number of ids does not match
	// the threshold.
	ErrInvalidThreshold = errors.New("polynomial: number of ids does not match threshold")
	// ErrIDOutOfRange is returned when an id does not belong to the
	// committee.
	ErrIDOutOfRange = errors.New("polynomial: id outside committee range")
)

// Lagrange returns, for each peer of an N-sized committee, the Lagrange
// weight mapping f(ids) to f(0): lⱼ(0) for j ∈ ids, and 0 for every peer
// outside the interpolation set. Share indices are id+1, never 0.
//
//	         x₀ ⋅⋅⋅ xₖ
//	lⱼ(0) = ---------------------------------------------
//	        xⱼ⋅(x₀ - xⱼ)⋅⋅⋅(xⱼ₋₁ - xⱼ)⋅(xⱼ₊₁ - xⱼ)⋅⋅⋅(xₖ - xⱼ)
func Lagrange(ids []party.ID, threshold, numPeers int) ([]*curve.Scalar, error) {
	if len(ids) != threshold {
		return nil, ErrInvalidThreshold
	}
	seen := make(map[party.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return nil, ErrDuplicateIDs
		}
		seen[id] = struct{}{}
	}

	// numerator = x₀ ⋅⋅⋅ xₖ over the whole interpolation set
	xs := make(map[party.ID]*curve.Scalar, len(ids))
	numerator := curve.NewScalarUint64(1)
	for _, id := range ids {
		xi := id.ShareIndex()
		xs[id] = xi
		numerator.Mul(numerator, xi)
	}

	coeffs := make([]*curve.Scalar, numPeers)
	for i := range coeffs {
		coeffs[i] = curve.NewScalar()
	}
	tmp := curve.NewScalar()
	for _, j := range ids {
		if int(j) >= numPeers {
			return nil, ErrIDOutOfRange
		}
		xj := xs[j]
		// denominator = xⱼ⋅(x₀ - xⱼ)⋅⋅⋅(xₖ - xⱼ), skipping xⱼ itself
		denominator := curve.NewScalarUint64(1)
		denominator.Mul(denominator, xj)
		for _, i := range ids {
			if i == j {
				continue
			}
			tmp.Sub(xs[i], xj)
			denominator.Mul(denominator, tmp)
		}
		lj := curve.NewScalar().Invert(denominator)
		lj.Mul(lj, numerator)
		coeffs[j] = lj
	}
	return coeffs, nil
}

// LagrangeSubset returns only the weights of the interpolation members, in
// the order of ids. Convenience for accumulating a threshold subset of
// shares.
func LagrangeSubset(ids []party.ID, threshold, numPeers int) ([]*curve.Scalar, error) {
	full, err := Lagrange(ids, threshold, numPeers)
	if err != nil {
		return nil, err
	}
	out := make([]*curve.Scalar, len(ids))
	for i, id := range ids {
		out[i] = full[id]
	}
	return out, nil
}
