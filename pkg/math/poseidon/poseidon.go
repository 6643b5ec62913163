// Package poseidon wraps the gnark-crypto Poseidon2 permutation over the
// bn254 scalar field (the BabyJubJub base field) in the widths the protocol
// uses: width 3 for the SAFE stream cipher, width 4 for the coefficient
// commitment sponge.
package poseidon

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

const (
	fullRounds    = 8
	partialRounds = 56
)

var (
	permT3 = poseidon2.NewPermutation(3, fullRounds, partialRounds)
	permT4 = poseidon2.NewPermutation(4, fullRounds, partialRounds)

	// cipherDomainSep is the SAFE sponge IO pattern for the share cipher:
	// absorb 2, squeeze 1, tag 0x4142 — [0x80000002, 0x00000001, 0x4142]
	// packed into a single 80-bit constant (SAFE-API, eprint 2023/522).
	cipherDomainSep fr.Element
)

func init() {
	v, ok := new(big.Int).SetString("80000002000000014142", 16)
	if !ok {
		panic("poseidon: bad cipher domain separator")
	}
	cipherDomainSep.SetBigInt(v)
}

// CipherDomainSep returns the SAFE domain separator of the share cipher.
func CipherDomainSep() fr.Element {
	return cipherDomainSep
}

// Permute3 applies the width-3 permutation in place.
func Permute3(state *[3]fr.Element) {
	if err := permT3.Permutation(state[:]); err != nil {
		panic("poseidon: width-3 permutation: " + err.Error())
	}
}

// Permute4 applies the width-4 permutation in place.
func Permute4(state *[4]fr.Element) {
	if err := permT4.Permutation(state[:]); err != nil {
		panic("poseidon: width-4 permutation: " + err.Error())
	}
}

// CipherKeystream derives the one-element keystream of the SAFE share
// cipher: absorb (ds, key.x, nonce) into a width-3 state and squeeze state
// element 1.
func CipherKeystream(keyX, nonce fr.Element) fr.Element {
	state := [3]fr.Element{cipherDomainSep, keyX, nonce}
	Permute3(&state)
	return state[1]
}
