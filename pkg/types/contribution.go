package types

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
)

// ErrMixedCommitments is returned when a round-1 contribution carries a
// share commitment without a coefficient commitment or vice versa.
var ErrMixedCommitments = errors.New("types: round-1 contribution mixes empty and non-empty commitments")

// Round1Contribution is a peer's first-round payload: a fresh ephemeral DH
// public key, and - for producers - the commitment a₀·G to the polynomial
// constant term plus the sponge commitment to the remaining coefficients.
//
// A consumer in resharing submits both commitments empty: CommShare nil and
// CommCoeffs zero.
type Round1Contribution struct {
	EphPubKey  curve.Point
	CommShare  *curve.Point
	CommCoeffs fr.Element
}

// IsProducer reports whether the contribution volunteers as a producer.
func (c *Round1Contribution) IsProducer() bool {
	return c.CommShare != nil
}

// Validate checks point membership of every carried point and rejects
// mixed empty/non-empty commitment combinations.
func (c *Round1Contribution) Validate() error {
	if err := c.EphPubKey.Validate(); err != nil {
		return err
	}
	if c.CommShare == nil {
		if !c.CommCoeffs.IsZero() {
			return ErrMixedCommitments
		}
		return nil
	}
	if c.CommCoeffs.IsZero() {
		return ErrMixedCommitments
	}
	return c.CommShare.Validate()
}

// Demote strips the producer commitments, turning the contribution into a
// consumer one. Applied when the producer set is already full.
func (c *Round1Contribution) Demote() {
	c.CommShare = nil
	c.CommCoeffs.SetZero()
}

// SecretGenCiphertext carries one recipient's encrypted share: the cipher
// nonce, the ciphertext share + H(ds, K.x, nonce), and the plaintext
// commitment s·G.
type SecretGenCiphertext struct {
	Nonce      fr.Element
	Cipher     fr.Element
	Commitment curve.Point
}

// Validate checks membership of the commitment point.
func (c *SecretGenCiphertext) Validate() error {
	return c.Commitment.Validate()
}

// Round2Contribution is a producer's second-round payload: the compressed
// proof and one ciphertext per recipient, ordered by peer ID.
type Round2Contribution struct {
	Proof   CompressedProof
	Ciphers []SecretGenCiphertext
}

// Validate checks the ciphertext count against the committee size and point
// membership of every commitment.
func (c *Round2Contribution) Validate(numPeers int) error {
	if len(c.Ciphers) != numPeers {
		return errors.New("types: round-2 contribution has wrong ciphertext count")
	}
	for i := range c.Ciphers {
		if err := c.Ciphers[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
