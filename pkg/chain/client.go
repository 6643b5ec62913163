// Package chain abstracts the node's view of the OprfKeyRegistry contract:
// an event stream in confirmed order, read calls, and contribution
// transactions. Implementations: the in-process simulator in this package
// and the go-ethereum backed client in chain/eth.
package chain

import (
	"context"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/registry"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Reader exposes the registry's view calls.
type Reader interface {
	// GetOprfPublicKeyAndEpoch returns the public key and epoch of a
	// registered (or round-3 pending) key.
	GetOprfPublicKeyAndEpoch(ctx context.Context, id types.OprfKeyID) (curve.Point, types.ShareEpoch, error)
	// GetPartyID resolves the node's wallet address to its peer id.
	GetPartyID(ctx context.Context) (party.ID, error)
	// LoadPeerPublicKeysForProducers returns the recipient ephemeral keys,
	// or an empty slice when the caller is not a producer.
	LoadPeerPublicKeysForProducers(ctx context.Context, id types.OprfKeyID) ([]curve.Point, error)
	// LoadPeerPublicKeysForConsumers returns the producers' ephemeral keys
	// in producer-id order.
	LoadPeerPublicKeysForConsumers(ctx context.Context, id types.OprfKeyID) ([]curve.Point, error)
	// Round2Ciphers returns the caller's ciphertexts in producer-id order.
	Round2Ciphers(ctx context.Context, id types.OprfKeyID) ([]types.SecretGenCiphertext, error)
}

// Submitter sends the node's contribution transactions. Implementations
// retry transient failures and surface contract reverts as the registry
// error they correspond to.
type Submitter interface {
	SubmitRound1KeyGen(ctx context.Context, id types.OprfKeyID, c types.Round1Contribution) error
	SubmitRound1Reshare(ctx context.Context, id types.OprfKeyID, c types.Round1Contribution) error
	SubmitRound2(ctx context.Context, id types.OprfKeyID, c types.Round2Contribution) error
	SubmitRound3(ctx context.Context, id types.OprfKeyID) error
}

// EventStream delivers registry events in chain-confirmed order.
type EventStream interface {
	// Events returns the stream channel. The channel closes when the
	// stream terminates; Err reports why.
	Events() <-chan registry.Event
	Err() error
}

// Client bundles the three roles a node needs.
type Client interface {
	Reader
	Submitter
	EventStream
}
