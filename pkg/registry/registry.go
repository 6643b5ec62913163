// Package registry implements the replicated state machine of the on-chain
// OprfKeyRegistry: one enum-variant state per OPRF key id, advanced by the
// contract operations and emitting the contract's event set.
//
// The machine is the single source of the contract semantics in this
// repository: the node's local mirror applies it to confirmed transactions,
// and the in-process chain simulator exposes it to tests.
package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/polynomial"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Registry is the per-key state machine plus committee bookkeeping.
//
// All transactions are serialized under one mutex; events are published to
// subscribers after the lock is released, in transaction order.
type Registry struct {
	mu       sync.Mutex
	params   keyproof.Params
	verifier keyproof.Verifier

	owner  common.Address
	admins map[common.Address]struct{}
	peers  []common.Address

	keys map[types.OprfKeyID]*keyState

	subMu sync.Mutex
	subs  []chan Event
}

// New creates a registry for the given parameter set. The owner is the
// initial key-gen admin.
func New(params keyproof.Params, verifier keyproof.Verifier, owner common.Address) (*Registry, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		params:   params,
		verifier: verifier,
		owner:    owner,
		admins:   map[common.Address]struct{}{owner: {}},
		keys:     make(map[types.OprfKeyID]*keyState),
	}, nil
}

// Subscribe returns a channel receiving every event emitted from now on.
func (r *Registry) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Registry) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ev := range events {
		for _, ch := range r.subs {
			ch <- ev
		}
	}
}

// NumPeers returns the committee size.
func (r *Registry) NumPeers() int { return r.params.NumPeers }

// Threshold returns the reconstruction threshold.
func (r *Registry) Threshold() int { return r.params.Threshold }

// RegisterOprfPeers fixes the committee. Peer ids are assigned by position;
// the committee is immutable afterwards.
func (r *Registry) RegisterOprfPeers(caller common.Address, peers []common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[caller]; !ok {
		return ErrOnlyAdmin
	}
	if r.peers != nil {
		return ErrPeersRegistered
	}
	if len(peers) != r.params.NumPeers {
		return ErrWrongPeerCount
	}
	r.peers = make([]common.Address, len(peers))
	copy(r.peers, peers)
	return nil
}

// AddKeyGenAdmin registers an additional admin.
func (r *Registry) AddKeyGenAdmin(caller, admin common.Address) error {
	r.mu.Lock()
	if _, ok := r.admins[caller]; !ok {
		r.mu.Unlock()
		return ErrOnlyAdmin
	}
	r.admins[admin] = struct{}{}
	r.mu.Unlock()
	r.publish([]Event{KeyGenAdminRegistered{Admin: admin}})
	return nil
}

// RevokeKeyGenAdmin removes an admin, refusing to remove the last one.
func (r *Registry) RevokeKeyGenAdmin(caller, admin common.Address) error {
	r.mu.Lock()
	if _, ok := r.admins[caller]; !ok {
		r.mu.Unlock()
		return ErrOnlyAdmin
	}
	if len(r.admins) == 1 {
		r.mu.Unlock()
		return ErrLastAdmin
	}
	delete(r.admins, admin)
	r.mu.Unlock()
	r.publish([]Event{KeyGenAdminRevoked{Admin: admin}})
	return nil
}

// partyID resolves a peer address to its id.
func (r *Registry) partyID(addr common.Address) (party.ID, error) {
	for i, p := range r.peers {
		if p == addr {
			return party.ID(i), nil
		}
	}
	return 0, ErrNotAParticipant
}

// GetPartyIDForParticipant resolves a peer address to its id.
func (r *Registry) GetPartyIDForParticipant(addr common.Address) (party.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partyID(addr)
}

// InitKeyGen starts a fresh DKG for the id. Allowed on unknown ids, on
// finalized ids (regeneration) and on deleted tombstones (which it
// revives); rejected while a generation is in flight.
func (r *Registry) InitKeyGen(caller common.Address, id types.OprfKeyID) error {
	r.mu.Lock()
	if _, ok := r.admins[caller]; !ok {
		r.mu.Unlock()
		return ErrOnlyAdmin
	}
	if st, ok := r.keys[id]; ok && !st.deleted && st.stage != StageFinalized {
		r.mu.Unlock()
		return ErrWrongRound
	}
	r.keys[id] = newKeyState(r.params.NumPeers, r.params.Threshold, 0)
	r.keys[id].shareCommitments = identityCommitments(r.params.NumPeers)
	r.mu.Unlock()
	r.publish([]Event{SecretGenRound1{KeyID: id, Threshold: r.params.Threshold}})
	return nil
}

// InitReshare starts a reshare of a finalized key.
func (r *Registry) InitReshare(caller common.Address, id types.OprfKeyID) error {
	r.mu.Lock()
	if _, ok := r.admins[caller]; !ok {
		r.mu.Unlock()
		return ErrOnlyAdmin
	}
	st, ok := r.keys[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownID
	}
	if st.deleted {
		r.mu.Unlock()
		return ErrDeletedID
	}
	if st.stage != StageFinalized || !st.registered {
		r.mu.Unlock()
		return ErrWrongRound
	}
	st.generatedEpoch = st.epoch.Next()
	st.stage = StageRound1
	st.resetRounds(r.params.NumPeers)
	r.mu.Unlock()
	r.publish([]Event{ReshareRound1{KeyID: id, Threshold: r.params.Threshold}})
	return nil
}

// DeleteOprfPublicKey marks the id deleted. The tombstone rejects racing
// contributions until a fresh init revives the id.
func (r *Registry) DeleteOprfPublicKey(caller common.Address, id types.OprfKeyID) error {
	r.mu.Lock()
	if _, ok := r.admins[caller]; !ok {
		r.mu.Unlock()
		return ErrOnlyAdmin
	}
	st, ok := r.keys[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownID
	}
	if st.deleted {
		r.mu.Unlock()
		return ErrDeletedID
	}
	st.deleted = true
	st.registered = false
	st.discardRounds()
	r.mu.Unlock()
	r.publish([]Event{KeyDeletion{KeyID: id}})
	return nil
}

// checkSubmission performs the common guards of every peer transaction.
func (r *Registry) checkSubmission(caller common.Address, id types.OprfKeyID, stage Stage) (party.ID, *keyState, error) {
	pid, err := r.partyID(caller)
	if err != nil {
		return 0, nil, err
	}
	st, ok := r.keys[id]
	if !ok {
		return 0, nil, ErrUnknownID
	}
	if st.deleted {
		return 0, nil, ErrDeletedID
	}
	if st.stage != stage {
		return 0, nil, ErrWrongRound
	}
	return pid, st, nil
}

// AddRound1KeyGenContribution accepts a DKG round-1 contribution. Every
// peer is a producer; the contribution must carry both commitments.
func (r *Registry) AddRound1KeyGenContribution(caller common.Address, id types.OprfKeyID, c types.Round1Contribution) error {
	r.mu.Lock()
	pid, st, err := r.checkSubmission(caller, id, StageRound1)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if st.isReshare() {
		r.mu.Unlock()
		return ErrWrongRound
	}
	if st.round1[pid] != nil {
		r.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if err := validateRound1(&c); err != nil {
		r.mu.Unlock()
		return err
	}
	if !c.IsProducer() {
		r.mu.Unlock()
		return ErrBadContribution
	}

	st.round1[pid] = &c
	st.numRound1++
	st.roles[pid] = RoleProducer
	st.numProducers++
	st.keyAggregate = st.keyAggregate.Add(*c.CommShare)

	var events []Event
	if st.numRound1 == r.params.NumPeers {
		st.stage = StageRound2
		st.shareCommitments = identityCommitments(r.params.NumPeers)
		events = append(events, SecretGenRound2{KeyID: id})
	}
	r.mu.Unlock()
	r.publish(events)
	return nil
}

// AddRound1ReshareContribution accepts a reshare round-1 contribution.
// Producer candidacy is first-come under transaction order until threshold
// producers exist; later candidates are demoted to consumers, dropping
// their commitments. A producer's CommShare must match the stored share
// commitment from the previous epoch.
func (r *Registry) AddRound1ReshareContribution(caller common.Address, id types.OprfKeyID, c types.Round1Contribution) error {
	r.mu.Lock()
	pid, st, err := r.checkSubmission(caller, id, StageRound1)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !st.isReshare() {
		r.mu.Unlock()
		return ErrWrongRound
	}
	if st.round1[pid] != nil {
		r.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if err := validateRound1(&c); err != nil {
		r.mu.Unlock()
		return err
	}

	if c.IsProducer() {
		if st.numProducers < st.threshold {
			if !c.CommShare.Equal(st.shareCommitments[pid]) {
				r.mu.Unlock()
				return ErrBadContribution
			}
			st.roles[pid] = RoleProducer
			st.numProducers++
		} else {
			// threshold already filled: demote, deleting the commitments
			c.Demote()
			st.roles[pid] = RoleConsumer
		}
	} else {
		st.roles[pid] = RoleConsumer
	}
	st.round1[pid] = &c
	st.numRound1++

	var events []Event
	if st.numRound1 == r.params.NumPeers {
		if st.numProducers < st.threshold {
			// abort: back to the finalized previous epoch
			st.generatedEpoch = st.epoch
			st.stage = StageFinalized
			st.resetRounds(r.params.NumPeers)
			events = append(events, NotEnoughProducers{KeyID: id})
		} else {
			lagrange, lerr := polynomial.Lagrange(st.producerIDs(), st.threshold, r.params.NumPeers)
			if lerr != nil {
				// producer ids are distinct by construction
				r.mu.Unlock()
				return lerr
			}
			st.lagrange = lagrange
			st.stage = StageRound2
			st.shareCommitments = identityCommitments(r.params.NumPeers)
			events = append(events, SecretGenRound2{KeyID: id})
		}
	}
	r.mu.Unlock()
	r.publish(events)
	return nil
}

// AddRound2Contribution accepts a producer's encrypted share distribution.
// The proof is verified against the public inputs rebuilt from registry
// state; verification failure reverts the transaction without a state
// change.
func (r *Registry) AddRound2Contribution(caller common.Address, id types.OprfKeyID, c types.Round2Contribution) error {
	r.mu.Lock()
	pid, st, err := r.checkSubmission(caller, id, StageRound2)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if st.roles[pid] != RoleProducer {
		r.mu.Unlock()
		return ErrNotAProducer
	}
	if st.round2Done[pid] {
		r.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if err := validateRound2(&c, r.params.NumPeers); err != nil {
		r.mu.Unlock()
		return err
	}

	own := st.round1[pid]
	recipients := make([]curve.Point, r.params.NumPeers)
	for i := range recipients {
		recipients[i] = st.round1[i].EphPubKey
	}
	inputs, err := keyproof.Assemble(r.params, own.EphPubKey, *own.CommShare, own.CommCoeffs, c.Ciphers, recipients)
	if err != nil {
		r.mu.Unlock()
		return ErrBadContribution
	}
	if err := r.verifier.Verify(c.Proof, inputs); err != nil {
		r.mu.Unlock()
		return err
	}

	for j := range c.Ciphers {
		cipher := c.Ciphers[j]
		st.round2[j][pid] = &cipher
		contrib := cipher.Commitment
		if st.isReshare() {
			contrib = contrib.ScalarMul(st.lagrange[pid])
		}
		st.shareCommitments[j] = st.shareCommitments[j].Add(contrib)
	}
	st.round2Done[pid] = true
	st.numRound2++

	var events []Event
	if st.numRound2 == st.requiredProducers(r.params.NumPeers) {
		st.stage = StageRound3
		if st.isReshare() {
			lagrange := make([]*curve.Scalar, len(st.lagrange))
			for i, l := range st.lagrange {
				lagrange[i] = curve.NewScalar().Set(l)
			}
			events = append(events, ReshareRound3{KeyID: id, Lagrange: lagrange})
		} else {
			events = append(events, SecretGenRound3{KeyID: id})
		}
	}
	r.mu.Unlock()
	r.publish(events)
	return nil
}

// AddRound3Contribution records a peer's acknowledgment. The last ack
// finalizes the generation: the key aggregate becomes the public key for a
// DKG, a reshare keeps the previous key with an incremented epoch.
func (r *Registry) AddRound3Contribution(caller common.Address, id types.OprfKeyID) error {
	r.mu.Lock()
	pid, st, err := r.checkSubmission(caller, id, StageRound3)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if st.round3Done[pid] {
		r.mu.Unlock()
		return ErrAlreadySubmitted
	}
	st.round3Done[pid] = true
	st.numRound3++

	var events []Event
	if st.numRound3 == r.params.NumPeers {
		if !st.isReshare() {
			st.publicKey = st.keyAggregate
		}
		st.epoch = st.generatedEpoch
		st.registered = true
		st.stage = StageFinalized
		st.discardRounds()
		events = append(events, SecretGenFinalize{KeyID: id, Epoch: st.epoch})
	}
	r.mu.Unlock()
	r.publish(events)
	return nil
}

// GetOprfPublicKey returns the registered public key. During round 3 of an
// initial DKG the aggregate is already fixed, so peers persisting their
// share before acking read it here.
func (r *Registry) GetOprfPublicKey(id types.OprfKeyID) (curve.Point, error) {
	pk, _, err := r.GetOprfPublicKeyAndEpoch(id)
	return pk, err
}

// GetOprfPublicKeyAndEpoch returns the public key with its epoch. For a key
// in round 3 the epoch returned is the generation target.
func (r *Registry) GetOprfPublicKeyAndEpoch(id types.OprfKeyID) (curve.Point, types.ShareEpoch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[id]
	if !ok {
		return curve.Point{}, 0, ErrUnknownID
	}
	if st.deleted {
		return curve.Point{}, 0, ErrDeletedID
	}
	if st.registered {
		if st.stage == StageRound3 && st.isReshare() {
			return st.publicKey, st.generatedEpoch, nil
		}
		return st.publicKey, st.epoch, nil
	}
	if st.stage == StageRound3 {
		// initial DKG: aggregate fixed once round 2 completed
		return st.keyAggregate, st.generatedEpoch, nil
	}
	return curve.Point{}, 0, ErrUnknownID
}

// LoadPeerPublicKeysForProducers returns the ephemeral public keys of all
// recipients, i.e. the full committee in peer-id order. Consumers receive
// an empty slice, which is how a peer learns it is not a producer.
func (r *Registry) LoadPeerPublicKeysForProducers(caller common.Address, id types.OprfKeyID) ([]curve.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, st, err := r.checkSubmission(caller, id, StageRound2)
	if err != nil {
		return nil, err
	}
	if st.roles[pid] != RoleProducer {
		return nil, nil
	}
	keys := make([]curve.Point, r.params.NumPeers)
	for i := range keys {
		keys[i] = st.round1[i].EphPubKey
	}
	return keys, nil
}

// LoadPeerPublicKeysForConsumers returns only the producers' ephemeral
// public keys, ordered by producer peer id. Every participant may call it.
func (r *Registry) LoadPeerPublicKeysForConsumers(caller common.Address, id types.OprfKeyID) ([]curve.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, st, err := r.checkSubmission(caller, id, StageRound3)
	if err != nil {
		return nil, err
	}
	keys := make([]curve.Point, 0, st.numProducers)
	for _, pid := range st.producerIDs() {
		keys = append(keys, st.round1[pid].EphPubKey)
	}
	return keys, nil
}

// CheckIsParticipantAndReturnRound2Ciphers returns the caller's ciphertexts
// from all producers, ordered by producer peer id.
func (r *Registry) CheckIsParticipantAndReturnRound2Ciphers(caller common.Address, id types.OprfKeyID) ([]types.SecretGenCiphertext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, st, err := r.checkSubmission(caller, id, StageRound3)
	if err != nil {
		return nil, err
	}
	ciphers := make([]types.SecretGenCiphertext, 0, st.numProducers)
	for _, producer := range st.producerIDs() {
		c := st.round2[pid][producer]
		if c == nil {
			return nil, ErrWrongRound
		}
		ciphers = append(ciphers, *c)
	}
	return ciphers, nil
}

// ShareCommitment returns the accumulated commitment of peer id's share.
// Retained across finalization; used by reshare producer checks and tests.
func (r *Registry) ShareCommitment(id types.OprfKeyID, pid party.ID) (curve.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.keys[id]
	if !ok {
		return curve.Point{}, ErrUnknownID
	}
	if int(pid) >= len(st.shareCommitments) {
		return curve.Point{}, ErrNotAParticipant
	}
	return st.shareCommitments[pid], nil
}

func validateRound1(c *types.Round1Contribution) error {
	if err := c.Validate(); err != nil {
		switch err {
		case curve.ErrNotOnCurve, curve.ErrNotInSubgroup:
			return ErrInvalidPoint
		default:
			return ErrBadContribution
		}
	}
	return nil
}

func validateRound2(c *types.Round2Contribution, numPeers int) error {
	if err := c.Validate(numPeers); err != nil {
		switch err {
		case curve.ErrNotOnCurve, curve.ErrNotInSubgroup:
			return ErrInvalidPoint
		default:
			return ErrBadContribution
		}
	}
	return nil
}

func identityCommitments(n int) []curve.Point {
	cs := make([]curve.Point, n)
	for i := range cs {
		cs[i] = curve.Identity()
	}
	return cs
}
