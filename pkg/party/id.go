// Package party defines peer identifiers for the OPRF committee.
//
// A peer's ID is a small non-negative integer in [0, numPeers), derived from
// the ordering of the registered on-chain addresses. Polynomials are never
// evaluated at 0, so a peer's share index is ID+1.
package party

import (
	"encoding/binary"
	"strconv"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
)

// ByteSize is the number of bytes required to store an ID.
const ByteSize = 2

// ID represents the identifier of a particular peer.
type ID uint16

// ShareIndex returns the scalar the sharing polynomial is evaluated at for
// this peer, i.e. ID+1. The constant term (index 0) is the secret.
func (p ID) ShareIndex() *curve.Scalar {
	return curve.NewScalarUint64(uint64(p) + 1)
}

// Bytes returns a big-endian encoding of length party.ByteSize.
func (p ID) Bytes() []byte {
	b := make([]byte, ByteSize)
	binary.BigEndian.PutUint16(b, uint16(p))
	return b
}

// String returns a base 10 representation of the ID.
func (p ID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// FromBytes reads the first party.ByteSize bytes of b as an ID.
func FromBytes(b []byte) ID {
	return ID(binary.BigEndian.Uint16(b))
}
