// Package types defines the identifiers and contribution payloads exchanged
// between OPRF peers and the on-chain key registry.
package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// OprfKeyIDBytes is the length of an OPRF key identifier: an externally
// chosen 160-bit value naming a single OPRF key.
const OprfKeyIDBytes = 20

// OprfKeyID names one OPRF key. One key, one sharing, many epochs.
type OprfKeyID [OprfKeyIDBytes]byte

// OprfKeyIDFromBig builds an identifier from a non-negative integer of at
// most 160 bits.
func OprfKeyIDFromBig(v *big.Int) (OprfKeyID, error) {
	if v.Sign() < 0 || v.BitLen() > 8*OprfKeyIDBytes {
		return OprfKeyID{}, errors.New("types: oprf key id exceeds 160 bits")
	}
	var id OprfKeyID
	v.FillBytes(id[:])
	return id, nil
}

// Big returns the identifier as a big integer.
func (id OprfKeyID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

func (id OprfKeyID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// ShareEpoch counts the generations of a sharing: 0 is the initial DKG
// epoch, each successful reshare increments it by one.
type ShareEpoch uint32

// IsInitial reports whether the epoch is the initial DKG epoch.
func (e ShareEpoch) IsInitial() bool {
	return e == 0
}

// Next returns the epoch a reshare would generate.
func (e ShareEpoch) Next() ShareEpoch {
	return e + 1
}

func (e ShareEpoch) String() string {
	return fmt.Sprintf("epoch(%d)", uint32(e))
}

// CompressedProofWords is the word count of a compressed Groth16 proof as
// submitted on-chain: A (1 word), B (2 words), C (1 word).
const CompressedProofWords = 4

// CompressedProof is the opaque compressed Groth16 proof attached to a
// round-2 contribution. The core treats it as a verifier input only; the
// circuit toolchain producing it lives outside this repository.
type CompressedProof [CompressedProofWords][32]byte

// IsZero reports whether the proof slot is all zeroes.
func (p CompressedProof) IsZero() bool {
	for _, w := range p {
		for _, b := range w {
			if b != 0 {
				return false
			}
		}
	}
	return true
}
