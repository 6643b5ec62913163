package registry

import (
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Stage tracks how far a key generation has progressed. Deletion is an
// orthogonal absorbing flag on the state, not a stage: a deleted key keeps
// its last stage as a tombstone.
type Stage uint8

const (
	// StageRound1 collects first-round contributions.
	StageRound1 Stage = iota + 1
	// StageRound2 collects encrypted share distributions from producers.
	StageRound2
	// StageRound3 collects acknowledgments.
	StageRound3
	// StageFinalized means the public key is registered for the epoch.
	StageFinalized
)

func (s Stage) String() string {
	switch s {
	case StageRound1:
		return "Round1"
	case StageRound2:
		return "Round2"
	case StageRound3:
		return "Round3"
	case StageFinalized:
		return "Finalized"
	default:
		return "None"
	}
}

// Role is a peer's part in the current generation.
type Role uint8

const (
	// RoleNotReady means the peer has not contributed to round 1 yet.
	RoleNotReady Role = iota
	// RoleProducer re-derives and distributes shares.
	RoleProducer
	// RoleConsumer only receives shares (resharing).
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "Producer"
	case RoleConsumer:
		return "Consumer"
	default:
		return "NotReady"
	}
}

// keyState is the per-OprfKeyId replicated state machine, the exact mirror
// of the on-chain registry entry.
type keyState struct {
	deleted bool
	stage   Stage

	// generatedEpoch is 0 for the initial DKG and the target epoch for a
	// reshare. A key with generatedEpoch > 0 is mid-reshare.
	generatedEpoch types.ShareEpoch
	threshold      int

	roles        []Role
	numProducers int

	// lagrange holds the per-peer reshare weights derived from the producer
	// set, zeros for consumers. nil during DKG.
	lagrange []*curve.Scalar

	round1     []*types.Round1Contribution
	numRound1  int
	round2     [][]*types.SecretGenCiphertext // [recipient][sender]
	round2Done []bool
	numRound2  int
	round3Done []bool
	numRound3  int

	// shareCommitments[j] accumulates to newShareⱼ·G during round 2 and is
	// retained across finalization for future reshares.
	shareCommitments []curve.Point
	// keyAggregate accumulates Σ commShareᵢ during a DKG round 1; after
	// finalization it is the OPRF public key.
	keyAggregate curve.Point

	// registered key material from the last finalization
	registered bool
	publicKey  curve.Point
	epoch      types.ShareEpoch
}

func newKeyState(numPeers, threshold int, epoch types.ShareEpoch) *keyState {
	st := &keyState{
		stage:          StageRound1,
		generatedEpoch: epoch,
		threshold:      threshold,
		keyAggregate:   curve.Identity(),
	}
	st.resetRounds(numPeers)
	return st
}

// resetRounds clears all per-round storage for a fresh round 1.
func (st *keyState) resetRounds(numPeers int) {
	st.roles = make([]Role, numPeers)
	st.numProducers = 0
	st.lagrange = nil
	st.round1 = make([]*types.Round1Contribution, numPeers)
	st.numRound1 = 0
	st.round2 = make([][]*types.SecretGenCiphertext, numPeers)
	for i := range st.round2 {
		st.round2[i] = make([]*types.SecretGenCiphertext, numPeers)
	}
	st.round2Done = make([]bool, numPeers)
	st.numRound2 = 0
	st.round3Done = make([]bool, numPeers)
	st.numRound3 = 0
}

// discardRounds drops round-1/2 storage after finalization, keeping the
// share commitments.
func (st *keyState) discardRounds() {
	st.roles = nil
	st.lagrange = nil
	st.round1 = nil
	st.round2 = nil
	st.round2Done = nil
	st.round3Done = nil
}

// isReshare reports whether the in-flight generation reshapes an existing
// key.
func (st *keyState) isReshare() bool {
	return !st.generatedEpoch.IsInitial()
}

// producerIDs returns the producer peer ids in ascending order.
func (st *keyState) producerIDs() party.IDSlice {
	ids := make(party.IDSlice, 0, st.numProducers)
	for i, r := range st.roles {
		if r == RoleProducer {
			ids = append(ids, party.ID(i))
		}
	}
	return ids
}

// requiredProducers is the number of round-2 contributions that complete
// round 2: every peer for a DKG, the producer subset for a reshare.
func (st *keyState) requiredProducers(numPeers int) int {
	if st.isReshare() {
		return st.threshold
	}
	return numPeers
}
