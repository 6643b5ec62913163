package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Event names, matched bit-for-bit by the chain indexing layer.
const (
	EventSecretGenRound1       = "SecretGenRound1"
	EventSecretGenRound2       = "SecretGenRound2"
	EventSecretGenRound3       = "SecretGenRound3"
	EventSecretGenFinalize     = "SecretGenFinalize"
	EventReshareRound1         = "ReshareRound1"
	EventReshareRound3         = "ReshareRound3"
	EventKeyDeletion           = "KeyDeletion"
	EventNotEnoughProducers    = "NotEnoughProducers"
	EventKeyGenAdminRegistered = "KeyGenAdminRegistered"
	EventKeyGenAdminRevoked    = "KeyGenAdminRevoked"
)

// Event is a registry log entry. Dispatchers type-switch on the concrete
// event structs.
type Event interface {
	Name() string
}

// SecretGenRound1 starts a DKG for a fresh key.
type SecretGenRound1 struct {
	KeyID     types.OprfKeyID
	Threshold int
}

// SecretGenRound2 signals that round 1 completed and producers shall
// distribute encrypted shares.
type SecretGenRound2 struct {
	KeyID types.OprfKeyID
}

// SecretGenRound3 signals that all required DKG producers finished round 2.
type SecretGenRound3 struct {
	KeyID types.OprfKeyID
}

// SecretGenFinalize signals that every peer acknowledged round 3 and the
// public key is registered for the epoch.
type SecretGenFinalize struct {
	KeyID types.OprfKeyID
	Epoch types.ShareEpoch
}

// ReshareRound1 starts a reshare for an existing key.
type ReshareRound1 struct {
	KeyID     types.OprfKeyID
	Threshold int
}

// ReshareRound3 is the reshare variant of SecretGenRound3; it additionally
// delivers the on-chain derived Lagrange coefficients, indexed by peer ID
// with zeros for consumers.
type ReshareRound3 struct {
	KeyID    types.OprfKeyID
	Lagrange []*curve.Scalar
}

// KeyDeletion marks a key as deleted; racing contributions fail afterwards.
type KeyDeletion struct {
	KeyID types.OprfKeyID
}

// NotEnoughProducers aborts a reshare whose round 1 completed with fewer
// than threshold producers.
type NotEnoughProducers struct {
	KeyID types.OprfKeyID
}

// KeyGenAdminRegistered announces a new key-gen admin.
type KeyGenAdminRegistered struct {
	Admin common.Address
}

// KeyGenAdminRevoked announces an admin revocation.
type KeyGenAdminRevoked struct {
	Admin common.Address
}

func (SecretGenRound1) Name() string       { return EventSecretGenRound1 }
func (SecretGenRound2) Name() string       { return EventSecretGenRound2 }
func (SecretGenRound3) Name() string       { return EventSecretGenRound3 }
func (SecretGenFinalize) Name() string     { return EventSecretGenFinalize }
func (ReshareRound1) Name() string         { return EventReshareRound1 }
func (ReshareRound3) Name() string         { return EventReshareRound3 }
func (KeyDeletion) Name() string           { return EventKeyDeletion }
func (NotEnoughProducers) Name() string    { return EventNotEnoughProducers }
func (KeyGenAdminRegistered) Name() string { return EventKeyGenAdminRegistered }
func (KeyGenAdminRevoked) Name() string    { return EventKeyGenAdminRevoked }
