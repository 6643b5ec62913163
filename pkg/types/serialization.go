package types

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
)

var errInvalidProofEncoding = errors.New("types: invalid compressed proof encoding")

// Contributions cross process boundaries (simulator transport, snapshots),
// so they carry a canonical CBOR form with big-endian field encodings.

type round1DTO struct {
	EphPubKey  []byte `cbor:"1,keyasint"`
	CommShare  []byte `cbor:"2,keyasint,omitempty"`
	CommCoeffs []byte `cbor:"3,keyasint"`
}

type ciphertextDTO struct {
	Nonce      []byte `cbor:"1,keyasint"`
	Cipher     []byte `cbor:"2,keyasint"`
	Commitment []byte `cbor:"3,keyasint"`
}

type round2DTO struct {
	Proof   [][]byte        `cbor:"1,keyasint"`
	Ciphers []ciphertextDTO `cbor:"2,keyasint"`
}

func baseBytes(e fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

// MarshalCBOR implements cbor.Marshaler.
func (c *Round1Contribution) MarshalCBOR() ([]byte, error) {
	dto := round1DTO{CommCoeffs: baseBytes(c.CommCoeffs)}
	var err error
	if dto.EphPubKey, err = c.EphPubKey.MarshalBinary(); err != nil {
		return nil, err
	}
	if c.CommShare != nil {
		if dto.CommShare, err = c.CommShare.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	return cbor.Marshal(dto)
}

// UnmarshalCBOR implements cbor.Unmarshaler. Point and range validation
// happens here, so decoded contributions are structurally sound.
func (c *Round1Contribution) UnmarshalCBOR(data []byte) error {
	var dto round1DTO
	if err := cbor.Unmarshal(data, &dto); err != nil {
		return err
	}
	if err := c.EphPubKey.UnmarshalBinary(dto.EphPubKey); err != nil {
		return err
	}
	coeffs, err := curve.BaseFromBytes(dto.CommCoeffs)
	if err != nil {
		return err
	}
	c.CommCoeffs = coeffs
	c.CommShare = nil
	if dto.CommShare != nil {
		var p curve.Point
		if err := p.UnmarshalBinary(dto.CommShare); err != nil {
			return err
		}
		c.CommShare = &p
	}
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (c *SecretGenCiphertext) MarshalCBOR() ([]byte, error) {
	commitment, err := c.Commitment.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(ciphertextDTO{
		Nonce:      baseBytes(c.Nonce),
		Cipher:     baseBytes(c.Cipher),
		Commitment: commitment,
	})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *SecretGenCiphertext) UnmarshalCBOR(data []byte) error {
	var dto ciphertextDTO
	if err := cbor.Unmarshal(data, &dto); err != nil {
		return err
	}
	return c.fromDTO(dto)
}

func (c *SecretGenCiphertext) fromDTO(dto ciphertextDTO) error {
	nonce, err := curve.BaseFromBytes(dto.Nonce)
	if err != nil {
		return err
	}
	cipher, err := curve.BaseFromBytes(dto.Cipher)
	if err != nil {
		return err
	}
	if err := c.Commitment.UnmarshalBinary(dto.Commitment); err != nil {
		return err
	}
	c.Nonce = nonce
	c.Cipher = cipher
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (c *Round2Contribution) MarshalCBOR() ([]byte, error) {
	dto := round2DTO{
		Proof:   make([][]byte, 0, CompressedProofWords),
		Ciphers: make([]ciphertextDTO, 0, len(c.Ciphers)),
	}
	for _, w := range c.Proof {
		word := make([]byte, len(w))
		copy(word, w[:])
		dto.Proof = append(dto.Proof, word)
	}
	for i := range c.Ciphers {
		commitment, err := c.Ciphers[i].Commitment.MarshalBinary()
		if err != nil {
			return nil, err
		}
		dto.Ciphers = append(dto.Ciphers, ciphertextDTO{
			Nonce:      baseBytes(c.Ciphers[i].Nonce),
			Cipher:     baseBytes(c.Ciphers[i].Cipher),
			Commitment: commitment,
		})
	}
	return cbor.Marshal(dto)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *Round2Contribution) UnmarshalCBOR(data []byte) error {
	var dto round2DTO
	if err := cbor.Unmarshal(data, &dto); err != nil {
		return err
	}
	var proof CompressedProof
	if len(dto.Proof) != CompressedProofWords {
		return errInvalidProofEncoding
	}
	for i, w := range dto.Proof {
		copy(proof[i][:], w)
	}
	ciphers := make([]SecretGenCiphertext, len(dto.Ciphers))
	for i := range dto.Ciphers {
		if err := ciphers[i].fromDTO(dto.Ciphers[i]); err != nil {
			return err
		}
	}
	c.Proof = proof
	c.Ciphers = ciphers
	return nil
}
