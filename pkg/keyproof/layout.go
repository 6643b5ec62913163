package keyproof

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// ErrLayout is returned when the pieces of a public-input vector do not
// match the parameter set.
var ErrLayout = errors.New("keyproof: public input pieces do not match parameters")

// NumPublicInputs returns the public-input count for an n-peer circuit:
//
//	[0]                ownEphPub.x
//	[1]                ownEphPub.y
//	[2]                ownCommShare.x
//	[3]                ownCommShare.y
//	[4]                ownCommCoeffs
//	[5+i]              cipherᵢ                i ∈ [0,n)
//	[5+n+2i .. +1]     commitmentᵢ.(x,y)      i ∈ [0,n)
//	[5+3n]             threshold - 1
//	[5+3n+1+2i .. +1]  recipientEphPubᵢ.(x,y) i ∈ [0,n)
//	[5+5n+1+i]         nonceᵢ                 i ∈ [0,n)
//
// Any off-by-one here silently rejects all proofs, so the layout lives in
// exactly one place.
func NumPublicInputs(numPeers int) int {
	return 6 + 6*numPeers
}

// Assemble builds the public-input vector for one producer's round-2
// contribution. Indices are producer-local: ciphers, commitments, recipient
// keys and nonces are all ordered by recipient peer ID.
func Assemble(
	p Params,
	ownEphPub curve.Point,
	ownCommShare curve.Point,
	ownCommCoeffs fr.Element,
	ciphers []types.SecretGenCiphertext,
	recipients []curve.Point,
) ([]fr.Element, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := p.NumPeers
	if len(ciphers) != n || len(recipients) != n {
		return nil, ErrLayout
	}

	inputs := make([]fr.Element, NumPublicInputs(n))
	inputs[0] = ownEphPub.X()
	inputs[1] = ownEphPub.Y()
	inputs[2] = ownCommShare.X()
	inputs[3] = ownCommShare.Y()
	inputs[4] = ownCommCoeffs
	for i := 0; i < n; i++ {
		inputs[5+i] = ciphers[i].Cipher
		inputs[5+n+2*i] = ciphers[i].Commitment.X()
		inputs[5+n+2*i+1] = ciphers[i].Commitment.Y()
	}
	inputs[5+3*n].SetUint64(uint64(p.Threshold - 1))
	for i := 0; i < n; i++ {
		inputs[5+3*n+1+2*i] = recipients[i].X()
		inputs[5+3*n+1+2*i+1] = recipients[i].Y()
		inputs[5+5*n+1+i] = ciphers[i].Nonce
	}
	return inputs, nil
}
