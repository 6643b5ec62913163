package keyproof

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/poseidon"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// ErrProofVerification is returned when a proof does not verify against the
// public inputs. The registry reverts the submitting transaction on this
// error.
var ErrProofVerification = errors.New("keyproof: proof verification failed")

// Prover produces the compressed proof for a public-input vector. The
// witness (polynomial coefficients, ephemeral secret key) is bound into the
// vector by construction; implementations receive only the public part.
type Prover interface {
	Prove(inputs []fr.Element) (types.CompressedProof, error)
}

// Verifier checks a compressed proof against a public-input vector.
type Verifier interface {
	Verify(proof types.CompressedProof, inputs []fr.Element) error
}

// DevProver is the dev-environment stand-in for the circuit toolchain: the
// "proof" is a Poseidon2 transcript digest of the public-input vector,
// packed into the compressed-proof slot. It proves nothing about the
// witness; it only gives the registry a binding to verify so that every
// revert path (flipped cipher, reordered inputs) behaves as in production.
type DevProver struct{}

// DevVerifier verifies DevProver transcripts by recomputing the digest.
type DevVerifier struct{}

// Prove implements Prover.
func (DevProver) Prove(inputs []fr.Element) (types.CompressedProof, error) {
	return transcriptDigest(inputs), nil
}

// Verify implements Verifier.
func (DevVerifier) Verify(proof types.CompressedProof, inputs []fr.Element) error {
	if proof != transcriptDigest(inputs) {
		return ErrProofVerification
	}
	return nil
}

// transcriptDigest absorbs the vector into a width-3 sponge at rate 2 and
// squeezes four words.
func transcriptDigest(inputs []fr.Element) types.CompressedProof {
	var state [3]fr.Element
	for i := 0; i < len(inputs); i += 2 {
		state[1].Add(&state[1], &inputs[i])
		if i+1 < len(inputs) {
			state[2].Add(&state[2], &inputs[i+1])
		}
		poseidon.Permute3(&state)
	}
	var proof types.CompressedProof
	for w := 0; w < types.CompressedProofWords; w++ {
		word := state[1].Bytes()
		proof[w] = word
		poseidon.Permute3(&state)
	}
	return proof
}
