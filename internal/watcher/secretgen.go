// Package watcher drives the node's side of the key-generation and reshare
// protocol: it dispatches confirmed registry events per OPRF key id and
// produces the round contributions.
package watcher

import (
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

var (
	// ErrNoRoundState is returned when a round event arrives without the
	// matching toxic waste, e.g. after a restart mid-protocol.
	ErrNoRoundState = errors.New("watcher: no round state for key")
	// ErrNoFinishedShare is returned when finalize arrives without a
	// computed share.
	ErrNoFinishedShare = errors.New("watcher: no finished share for key")
)

// round1Waste is the toxic waste of round 1: the full sharing polynomial
// and the ephemeral DH secret. Wiped when consumed or deleted.
type round1Waste struct {
	poly *keygen.Poly
	esk  *curve.Scalar
	epk  curve.Point
}

// round2Waste keeps only the ephemeral DH secret needed to decrypt the
// round-2 ciphertexts.
type round2Waste struct {
	esk *curve.Scalar
}

func (w *round1Waste) zeroize() {
	w.poly.Zeroize()
	w.esk.Zeroize()
}

func (w *round2Waste) zeroize() {
	w.esk.Zeroize()
}

// SecretGen owns the per-key toxic waste of in-flight generations. It is
// only touched from the per-key dispatcher goroutines; the internal mutex
// guards the maps across keys, not protocol ordering.
type SecretGen struct {
	mu       sync.Mutex
	self     party.ID
	rand     io.Reader
	prover   keyproof.Prover
	nonces   *keygen.NonceSource
	round1   map[types.OprfKeyID]*round1Waste
	round2   map[types.OprfKeyID]*round2Waste
	finished map[types.OprfKeyID]keygen.Share
}

// NewSecretGenWithDefaults creates the service with the crypto/rand source
// and the dev transcript prover. Deployments with a circuit toolchain
// configure NewSecretGen directly.
func NewSecretGenWithDefaults(self party.ID) *SecretGen {
	return NewSecretGen(self, keyproof.DevProver{}, cryptorand.Reader)
}

// NewSecretGen creates the service for one node.
func NewSecretGen(self party.ID, prover keyproof.Prover, rand io.Reader) *SecretGen {
	return &SecretGen{
		self:     self,
		rand:     rand,
		prover:   prover,
		nonces:   keygen.NewNonceSource(rand),
		round1:   make(map[types.OprfKeyID]*round1Waste),
		round2:   make(map[types.OprfKeyID]*round2Waste),
		finished: make(map[types.OprfKeyID]keygen.Share),
	}
}

// KeyGenRound1 draws a fresh polynomial with a random secret and an
// ephemeral DH keypair, and returns the producer round-1 contribution.
func (s *SecretGen) KeyGenRound1(id types.OprfKeyID, threshold int) (types.Round1Contribution, error) {
	poly := keygen.NewPoly(s.rand, threshold-1)
	return s.round1Inner(id, poly)
}

// ReshareRound1Producer volunteers as a reshare producer: the polynomial's
// constant term is the node's current share so the contract can match the
// commitment against the stored one.
func (s *SecretGen) ReshareRound1Producer(id types.OprfKeyID, threshold int, oldShare keygen.Share) (types.Round1Contribution, error) {
	poly := keygen.ResharePoly(s.rand, oldShare, threshold-1)
	return s.round1Inner(id, poly)
}

func (s *SecretGen) round1Inner(id types.OprfKeyID, poly *keygen.Poly) (types.Round1Contribution, error) {
	esk, epk := sample.ScalarPointPair(s.rand)
	// subgroup-check own points before submission
	commShare := poly.CommShare()
	if err := epk.Validate(); err != nil {
		return types.Round1Contribution{}, err
	}
	if err := commShare.Validate(); err != nil {
		return types.Round1Contribution{}, err
	}
	s.mu.Lock()
	if old, ok := s.round1[id]; ok {
		old.zeroize()
	}
	s.round1[id] = &round1Waste{poly: poly, esk: esk, epk: epk}
	s.mu.Unlock()
	commCoeffs := poly.CommCoeffs()
	return types.Round1Contribution{
		EphPubKey:  epk,
		CommShare:  &commShare,
		CommCoeffs: commCoeffs,
	}, nil
}

// ReshareRound1Consumer registers as a consumer: a fresh DH keypair with
// empty commitments. The secret moves straight to round-2 waste since a
// consumer has no polynomial to distribute.
func (s *SecretGen) ReshareRound1Consumer(id types.OprfKeyID) types.Round1Contribution {
	esk, epk := sample.ScalarPointPair(s.rand)
	s.mu.Lock()
	if old, ok := s.round2[id]; ok {
		old.zeroize()
	}
	s.round2[id] = &round2Waste{esk: esk}
	s.mu.Unlock()
	return types.Round1Contribution{EphPubKey: epk}
}

// ProducerRound2 evaluates the polynomial for every recipient, encrypts the
// shares, proves the batch, and returns the round-2 contribution. The
// polynomial is wiped afterwards; only the DH secret survives into round 3.
func (s *SecretGen) ProducerRound2(id types.OprfKeyID, recipients []curve.Point) (types.Round2Contribution, error) {
	s.mu.Lock()
	waste, ok := s.round1[id]
	if ok {
		delete(s.round1, id)
	}
	s.mu.Unlock()
	if !ok {
		return types.Round2Contribution{}, ErrNoRoundState
	}

	numPeers := len(recipients)
	params := keyproof.Params{Threshold: waste.poly.Degree() + 1, NumPeers: numPeers}
	if err := params.Validate(); err != nil {
		return types.Round2Contribution{}, err
	}

	ciphers := make([]types.SecretGenCiphertext, numPeers)
	for j := 0; j < numPeers; j++ {
		nonce := s.nonces.Next()
		commitment, cipher, err := waste.poly.GenShare(party.ID(j), waste.esk, recipients[j], nonce)
		if err != nil {
			return types.Round2Contribution{}, fmt.Errorf("watcher: generating share for peer %d: %w", j, err)
		}
		ciphers[j] = types.SecretGenCiphertext{
			Nonce:      nonce,
			Cipher:     cipher,
			Commitment: commitment,
		}
	}

	inputs, err := keyproof.Assemble(params, waste.epk, waste.poly.CommShare(), waste.poly.CommCoeffs(), ciphers, recipients)
	if err != nil {
		return types.Round2Contribution{}, err
	}
	proof, err := s.prover.Prove(inputs)
	if err != nil {
		return types.Round2Contribution{}, fmt.Errorf("watcher: proving round-2 contribution: %w", err)
	}

	waste.poly.Zeroize()
	s.mu.Lock()
	s.round2[id] = &round2Waste{esk: waste.esk}
	s.mu.Unlock()

	return types.Round2Contribution{Proof: proof, Ciphers: ciphers}, nil
}

// ConsumerRound2 reverts a producer candidacy that the contract demoted (or
// that lost the race): the polynomial is dropped, the DH secret moves to
// round-2 waste so the ciphertexts can still be decrypted.
func (s *SecretGen) ConsumerRound2(id types.OprfKeyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if waste, ok := s.round1[id]; ok {
		delete(s.round1, id)
		waste.poly.Zeroize()
		s.round2[id] = &round2Waste{esk: waste.esk}
	}
}

// Round3 decrypts the received ciphertexts, checks every plaintext against
// its commitment, and combines the shares: plainly for a DKG, weighted by
// the Lagrange coefficients for a reshare. The combined share is retained
// until finalize.
func (s *SecretGen) Round3(id types.OprfKeyID, ciphers []types.SecretGenCiphertext, producerPKs []curve.Point, lagrange []*curve.Scalar) (keygen.Share, error) {
	s.mu.Lock()
	waste, ok := s.round2[id]
	if ok {
		delete(s.round2, id)
	}
	s.mu.Unlock()
	if !ok {
		return keygen.Share{}, ErrNoRoundState
	}
	defer waste.zeroize()

	if len(ciphers) != len(producerPKs) {
		return keygen.Share{}, fmt.Errorf("watcher: %d ciphers for %d producers", len(ciphers), len(producerPKs))
	}
	if lagrange != nil && len(lagrange) != len(ciphers) {
		return keygen.Share{}, fmt.Errorf("watcher: %d lagrange weights for %d ciphers", len(lagrange), len(ciphers))
	}

	shares := make([]keygen.Share, len(ciphers))
	for i := range ciphers {
		share, err := keygen.DecryptAndVerifyShare(
			waste.esk, producerPKs[i], ciphers[i].Cipher, ciphers[i].Nonce, ciphers[i].Commitment)
		if err != nil {
			for _, sh := range shares[:i] {
				sh.Zeroize()
			}
			return keygen.Share{}, fmt.Errorf("watcher: ciphertext from producer %d: %w", i, err)
		}
		shares[i] = share
	}

	var combined keygen.Share
	if lagrange == nil {
		combined = keygen.AccumulateShares(shares)
	} else {
		combined = keygen.AccumulateLagrangeShares(shares, lagrange)
	}
	for _, sh := range shares {
		sh.Zeroize()
	}

	s.mu.Lock()
	s.finished[id] = combined
	s.mu.Unlock()
	return combined, nil
}

// Finalize pops the finished share for id.
func (s *SecretGen) Finalize(id types.OprfKeyID) (keygen.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.finished[id]
	if !ok {
		return keygen.Share{}, ErrNoFinishedShare
	}
	delete(s.finished, id)
	return share, nil
}

// Delete wipes all material associated with id: round-1 and round-2 toxic
// waste and any finished share waiting for finalize.
func (s *SecretGen) Delete(id types.OprfKeyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.round1[id]; ok {
		w.zeroize()
		delete(s.round1, id)
	}
	if w, ok := s.round2[id]; ok {
		w.zeroize()
		delete(s.round2, id)
	}
	if sh, ok := s.finished[id]; ok {
		sh.Zeroize()
		delete(s.finished, id)
	}
}

// Abort drops the round state after a NotEnoughProducers event. Identical
// cleanup to Delete; the key itself stays live.
func (s *SecretGen) Abort(id types.OprfKeyID) {
	s.Delete(id)
}
