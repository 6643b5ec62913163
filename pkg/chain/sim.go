package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/registry"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// SimClient is an in-process chain backed directly by the registry state
// machine. Contributions round-trip through their canonical CBOR encoding,
// so a simulated run exercises the same wire validation as a real one.
//
// Confirmation depth is zero: the registry's transaction order is the
// confirmed order.
type SimClient struct {
	reg    *registry.Registry
	sender common.Address
	events <-chan registry.Event
}

var _ Client = (*SimClient)(nil)

// NewSimClient connects a peer wallet to the simulated registry.
func NewSimClient(reg *registry.Registry, sender common.Address) *SimClient {
	return &SimClient{
		reg:    reg,
		sender: sender,
		events: reg.Subscribe(),
	}
}

// Registry exposes the underlying state machine for test orchestration.
func (c *SimClient) Registry() *registry.Registry { return c.reg }

// Events implements EventStream.
func (c *SimClient) Events() <-chan registry.Event { return c.events }

// Err implements EventStream. The simulator never fails.
func (c *SimClient) Err() error { return nil }

// GetOprfPublicKeyAndEpoch implements Reader.
func (c *SimClient) GetOprfPublicKeyAndEpoch(_ context.Context, id types.OprfKeyID) (curve.Point, types.ShareEpoch, error) {
	return c.reg.GetOprfPublicKeyAndEpoch(id)
}

// GetPartyID implements Reader.
func (c *SimClient) GetPartyID(_ context.Context) (party.ID, error) {
	return c.reg.GetPartyIDForParticipant(c.sender)
}

// LoadPeerPublicKeysForProducers implements Reader.
func (c *SimClient) LoadPeerPublicKeysForProducers(_ context.Context, id types.OprfKeyID) ([]curve.Point, error) {
	return c.reg.LoadPeerPublicKeysForProducers(c.sender, id)
}

// LoadPeerPublicKeysForConsumers implements Reader.
func (c *SimClient) LoadPeerPublicKeysForConsumers(_ context.Context, id types.OprfKeyID) ([]curve.Point, error) {
	return c.reg.LoadPeerPublicKeysForConsumers(c.sender, id)
}

// Round2Ciphers implements Reader.
func (c *SimClient) Round2Ciphers(_ context.Context, id types.OprfKeyID) ([]types.SecretGenCiphertext, error) {
	return c.reg.CheckIsParticipantAndReturnRound2Ciphers(c.sender, id)
}

// SubmitRound1KeyGen implements Submitter.
func (c *SimClient) SubmitRound1KeyGen(_ context.Context, id types.OprfKeyID, contribution types.Round1Contribution) error {
	decoded, err := roundTripRound1(contribution)
	if err != nil {
		return err
	}
	return c.reg.AddRound1KeyGenContribution(c.sender, id, decoded)
}

// SubmitRound1Reshare implements Submitter.
func (c *SimClient) SubmitRound1Reshare(_ context.Context, id types.OprfKeyID, contribution types.Round1Contribution) error {
	decoded, err := roundTripRound1(contribution)
	if err != nil {
		return err
	}
	return c.reg.AddRound1ReshareContribution(c.sender, id, decoded)
}

// SubmitRound2 implements Submitter.
func (c *SimClient) SubmitRound2(_ context.Context, id types.OprfKeyID, contribution types.Round2Contribution) error {
	raw, err := cbor.Marshal(&contribution)
	if err != nil {
		return err
	}
	var decoded types.Round2Contribution
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return c.reg.AddRound2Contribution(c.sender, id, decoded)
}

// SubmitRound3 implements Submitter.
func (c *SimClient) SubmitRound3(_ context.Context, id types.OprfKeyID) error {
	return c.reg.AddRound3Contribution(c.sender, id)
}

func roundTripRound1(contribution types.Round1Contribution) (types.Round1Contribution, error) {
	raw, err := cbor.Marshal(&contribution)
	if err != nil {
		return types.Round1Contribution{}, err
	}
	var decoded types.Round1Contribution
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return types.Round1Contribution{}, err
	}
	return decoded, nil
}
