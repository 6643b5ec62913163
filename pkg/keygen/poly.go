package keygen

import (
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/polynomial"
	"github.com/TaceoLabs/oprf-service/pkg/math/poseidon"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/party"
)

// coeffDomainSep is the capacity-element domain separator of the
// coefficient commitment sponge: the big-endian interpretation of
// "KeyGenPolyCoeff".
var coeffDomainSep fr.Element

func init() {
	coeffDomainSep.SetBigInt(new(big.Int).SetBytes([]byte("KeyGenPolyCoeff")))
}

// Poly is the sharing polynomial one peer generates for a single key
// generation or reshare, together with the two public commitments:
//
//   - CommShare = a₀·G, the commitment to the constant term.
//   - CommCoeffs, a Poseidon2 sponge digest of the non-constant
//     coefficients.
//
// The polynomial is toxic waste: peers must Zeroize it after round 2.
type Poly struct {
	poly       *polynomial.Polynomial
	commShare  curve.Point
	commCoeffs fr.Element
}

// NewPoly generates a fresh polynomial with a random secret constant term.
// degree is threshold-1.
func NewPoly(rand io.Reader, degree int) *Poly {
	secret := sample.Scalar(rand)
	p := ResharePoly(rand, NewShare(secret), degree)
	return p
}

// ResharePoly generates a polynomial whose constant term is the provided
// share. During resharing the caller passes its current share multiplied by
// its Lagrange weight semantics on the accumulation side; the polynomial
// itself carries the plain share so the contract can match CommShare against
// the stored share commitment.
func ResharePoly(rand io.Reader, share Share, degree int) *Poly {
	poly := polynomial.NewPolynomial(degree, share.Scalar(), rand)
	commShare, commCoeffs := commitPoly(poly)
	return &Poly{
		poly:       poly,
		commShare:  commShare,
		commCoeffs: commCoeffs,
	}
}

// commitPoly commits to the constant term as a₀·G and to the remaining
// coefficients with the sponge.
func commitPoly(p *polynomial.Polynomial) (curve.Point, fr.Element) {
	commShare := curve.ScalarBaseMul(p.Constant())
	return commShare, CommitCoeffs(p.Coefficients()[1:])
}

// CommitCoeffs is the coefficient commitment sponge: a width-4 state with
// the domain separator in the capacity element, coefficients absorbed in
// chunks of three (zero-padded), digest is state element 1 after the final
// permutation.
func CommitCoeffs(coeffs []*curve.Scalar) fr.Element {
	var state [4]fr.Element
	state[0] = coeffDomainSep
	for start := 0; start < len(coeffs); start += 3 {
		for i := 0; i < 3 && start+i < len(coeffs); i++ {
			base := coeffs[start+i].Base()
			state[1+i].Add(&state[1+i], &base)
		}
		poseidon.Permute4(&state)
	}
	return state[1]
}

// GenShare evaluates the polynomial for the recipient, encrypts the
// resulting share under the Diffie-Hellman key of (mySK, theirPK), and
// returns the share commitment together with the ciphertext.
//
// theirPK must be a validated point: round-1 ingestion enforces curve and
// subgroup membership before an ephemeral key is ever used here.
func (p *Poly) GenShare(id party.ID, mySK *curve.Scalar, theirPK curve.Point, nonce fr.Element) (curve.Point, fr.Element, error) {
	if err := theirPK.Validate(); err != nil {
		return curve.Point{}, fr.Element{}, err
	}
	share := p.poly.Evaluate(id.ShareIndex())

	symmKey := DeriveKey(mySK, theirPK)
	cipher := EncryptShare(symmKey, NewShare(share), nonce)

	// the share is uniform, so the commitment needs no extra randomness
	commitment := curve.ScalarBaseMul(share)
	return commitment, cipher, nil
}

// Coefficients returns the polynomial coefficients. Sensitive data; only the
// proof input assembly reads them.
func (p *Poly) Coefficients() []*curve.Scalar {
	return p.poly.Coefficients()
}

// Degree returns the polynomial degree (threshold-1).
func (p *Poly) Degree() int {
	return p.poly.Degree()
}

// CommShare returns the commitment to the constant term, a₀·G.
func (p *Poly) CommShare() curve.Point {
	return p.commShare
}

// CommCoeffs returns the sponge commitment to the non-constant coefficients.
func (p *Poly) CommCoeffs() fr.Element {
	return p.commCoeffs
}

// Zeroize wipes the polynomial coefficients.
func (p *Poly) Zeroize() {
	p.poly.Zeroize()
}
