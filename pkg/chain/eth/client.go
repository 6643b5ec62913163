package eth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/TaceoLabs/oprf-service/pkg/chain"
	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/registry"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Config wires a Client.
type Config struct {
	RPCURL          string
	ContractAddress common.Address
	PrivateKey      *ecdsa.PrivateKey
	// Confirmations is the block depth behind head at which events are
	// treated as final.
	Confirmations uint64
	// StartBlock replays past events from this block on startup; zero
	// starts at the current confirmed head.
	StartBlock uint64
	// PollInterval is the cadence of the confirmed-log poller.
	PollInterval time.Duration
	GasLimit     uint64
	Log          zerolog.Logger
}

// Client talks to the OprfKeyRegistry contract. Events are polled below the
// confirmation horizon, so the delivered order is the chain-confirmed order
// and reorged logs are never surfaced.
type Client struct {
	cfg      Config
	eth      *ethclient.Client
	chainID  *big.Int
	sender   common.Address
	events   chan registry.Event
	errMu    sync.Mutex
	err      error
	nonceMu  sync.Mutex
	log      zerolog.Logger
}

var _ chain.Client = (*Client)(nil)

// Dial connects the RPC endpoint and starts the event poller.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 5_000_000
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("eth: dialing rpc: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth: reading chain id: %w", err)
	}
	c := &Client{
		cfg:     cfg,
		eth:     ec,
		chainID: chainID,
		sender:  crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		events:  make(chan registry.Event, 256),
		log:     cfg.Log.With().Str("task", "chain-client").Logger(),
	}
	go c.pollLoop(ctx)
	return c, nil
}

// Sender returns the wallet address of this client.
func (c *Client) Sender() common.Address { return c.sender }

// Events implements chain.EventStream.
func (c *Client) Events() <-chan registry.Event { return c.events }

// Err implements chain.EventStream.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	close(c.events)
}

// pollLoop repeatedly scans [lastProcessed+1, head-confirmations] for
// registry logs. Processing strictly below the confirmation horizon makes
// event delivery idempotent across reorgs.
func (c *Client) pollLoop(ctx context.Context) {
	var from uint64
	if c.cfg.StartBlock > 0 {
		from = c.cfg.StartBlock
	} else {
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			c.fail(fmt.Errorf("eth: reading head: %w", err))
			return
		}
		from = confirmedHead(head, c.cfg.Confirmations) + 1
	}
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.fail(ctx.Err())
			return
		case <-ticker.C:
		}
		head, err := c.eth.BlockNumber(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("head poll failed")
			continue
		}
		to := confirmedHead(head, c.cfg.Confirmations)
		if to < from {
			continue
		}
		logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{c.cfg.ContractAddress},
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("log poll failed")
			continue
		}
		for _, lg := range logs {
			ev, err := c.decodeLog(lg)
			if err != nil {
				c.log.Warn().Err(err).Msg("skipping undecodable log")
				continue
			}
			if ev == nil {
				continue
			}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				c.fail(ctx.Err())
				return
			}
		}
		from = to + 1
	}
}

func confirmedHead(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}

func (c *Client) decodeLog(lg gethtypes.Log) (registry.Event, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}
	ev, err := parsedABI.EventByID(lg.Topics[0])
	if err != nil {
		// not one of ours
		return nil, nil
	}
	values, err := ev.Inputs.Unpack(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("eth: unpacking %s: %w", ev.Name, err)
	}
	switch ev.Name {
	case registry.EventSecretGenRound1, registry.EventReshareRound1:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		threshold := int(values[1].(*big.Int).Int64())
		if ev.Name == registry.EventSecretGenRound1 {
			return registry.SecretGenRound1{KeyID: id, Threshold: threshold}, nil
		}
		return registry.ReshareRound1{KeyID: id, Threshold: threshold}, nil
	case registry.EventSecretGenRound2:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		return registry.SecretGenRound2{KeyID: id}, nil
	case registry.EventSecretGenRound3:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		return registry.SecretGenRound3{KeyID: id}, nil
	case registry.EventSecretGenFinalize:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		epoch := types.ShareEpoch(values[1].(*big.Int).Uint64())
		return registry.SecretGenFinalize{KeyID: id, Epoch: epoch}, nil
	case registry.EventReshareRound3:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		raw := values[1].([]*big.Int)
		lagrange := make([]*curve.Scalar, len(raw))
		for i, v := range raw {
			s, err := curve.NewScalar().SetBigInt(v)
			if err != nil {
				return nil, fmt.Errorf("eth: lagrange coefficient %d: %w", i, err)
			}
			lagrange[i] = s
		}
		return registry.ReshareRound3{KeyID: id, Lagrange: lagrange}, nil
	case registry.EventKeyDeletion:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		return registry.KeyDeletion{KeyID: id}, nil
	case registry.EventNotEnoughProducers:
		id, err := keyIDArg(values[0])
		if err != nil {
			return nil, err
		}
		return registry.NotEnoughProducers{KeyID: id}, nil
	case registry.EventKeyGenAdminRegistered:
		return registry.KeyGenAdminRegistered{Admin: values[0].(common.Address)}, nil
	case registry.EventKeyGenAdminRevoked:
		return registry.KeyGenAdminRevoked{Admin: values[0].(common.Address)}, nil
	}
	return nil, nil
}

func keyIDArg(v interface{}) (types.OprfKeyID, error) {
	return types.OprfKeyIDFromBig(v.(*big.Int))
}

// call executes a view method at the latest block.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("eth: packing %s: %w", method, err)
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From: c.sender,
		To:   &c.cfg.ContractAddress,
		Data: data,
	}, nil)
	if err != nil {
		return nil, mapRevert(err)
	}
	out, err := parsedABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("eth: unpacking %s: %w", method, err)
	}
	return out, nil
}

// GetOprfPublicKeyAndEpoch implements chain.Reader.
func (c *Client) GetOprfPublicKeyAndEpoch(ctx context.Context, id types.OprfKeyID) (curve.Point, types.ShareEpoch, error) {
	out, err := c.call(ctx, "getOprfPublicKeyAndEpoch", id.Big())
	if err != nil {
		return curve.Point{}, 0, err
	}
	wp := *abi.ConvertType(out[0], new(wirePoint)).(*wirePoint)
	pk, err := pointFromWire(wp)
	if err != nil {
		return curve.Point{}, 0, err
	}
	epoch := types.ShareEpoch(out[1].(*big.Int).Uint64())
	return pk, epoch, nil
}

// GetPartyID implements chain.Reader.
func (c *Client) GetPartyID(ctx context.Context) (party.ID, error) {
	out, err := c.call(ctx, "getPartyIdForParticipant", c.sender)
	if err != nil {
		return 0, err
	}
	return party.ID(out[0].(*big.Int).Uint64()), nil
}

// LoadPeerPublicKeysForProducers implements chain.Reader.
func (c *Client) LoadPeerPublicKeysForProducers(ctx context.Context, id types.OprfKeyID) ([]curve.Point, error) {
	return c.loadPeerKeys(ctx, "loadPeerPublicKeysForProducers", id)
}

// LoadPeerPublicKeysForConsumers implements chain.Reader.
func (c *Client) LoadPeerPublicKeysForConsumers(ctx context.Context, id types.OprfKeyID) ([]curve.Point, error) {
	return c.loadPeerKeys(ctx, "loadPeerPublicKeysForConsumers", id)
}

func (c *Client) loadPeerKeys(ctx context.Context, method string, id types.OprfKeyID) ([]curve.Point, error) {
	out, err := c.call(ctx, method, id.Big())
	if err != nil {
		return nil, err
	}
	wire := *abi.ConvertType(out[0], new([]wirePoint)).(*[]wirePoint)
	points := make([]curve.Point, len(wire))
	for i, wp := range wire {
		if points[i], err = pointFromWire(wp); err != nil {
			return nil, fmt.Errorf("eth: peer key %d: %w", i, err)
		}
		if err := points[i].Validate(); err != nil {
			return nil, fmt.Errorf("eth: peer key %d: %w", i, err)
		}
	}
	return points, nil
}

// Round2Ciphers implements chain.Reader.
func (c *Client) Round2Ciphers(ctx context.Context, id types.OprfKeyID) ([]types.SecretGenCiphertext, error) {
	out, err := c.call(ctx, "checkIsParticipantAndReturnRound2Ciphers", id.Big())
	if err != nil {
		return nil, err
	}
	wire := *abi.ConvertType(out[0], new([]wireCiphertext)).(*[]wireCiphertext)
	ciphers := make([]types.SecretGenCiphertext, len(wire))
	for i, wc := range wire {
		if ciphers[i], err = ciphertextFromWire(wc); err != nil {
			return nil, fmt.Errorf("eth: ciphertext %d: %w", i, err)
		}
	}
	return ciphers, nil
}

// SubmitRound1KeyGen implements chain.Submitter.
func (c *Client) SubmitRound1KeyGen(ctx context.Context, id types.OprfKeyID, contribution types.Round1Contribution) error {
	return c.transact(ctx, "addRound1KeyGenContribution", id.Big(), round1ToWire(contribution))
}

// SubmitRound1Reshare implements chain.Submitter.
func (c *Client) SubmitRound1Reshare(ctx context.Context, id types.OprfKeyID, contribution types.Round1Contribution) error {
	return c.transact(ctx, "addRound1ReshareContribution", id.Big(), round1ToWire(contribution))
}

// SubmitRound2 implements chain.Submitter.
func (c *Client) SubmitRound2(ctx context.Context, id types.OprfKeyID, contribution types.Round2Contribution) error {
	return c.transact(ctx, "addRound2Contribution", id.Big(), round2ToWire(contribution))
}

// SubmitRound3 implements chain.Submitter.
func (c *Client) SubmitRound3(ctx context.Context, id types.OprfKeyID) error {
	return c.transact(ctx, "addRound3Contribution", id.Big())
}

// transact signs, sends and awaits one contribution transaction. Outbound
// transactions are serialized so the simple nonce management cannot race
// itself.
func (c *Client) transact(ctx context.Context, method string, args ...interface{}) error {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("eth: packing %s: %w", method, err)
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return fmt.Errorf("eth: reading nonce: %w", err)
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("eth: reading gas tip: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("eth: reading head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       c.cfg.GasLimit,
		To:        &c.cfg.ContractAddress,
		Data:      data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("eth: signing %s: %w", method, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("eth: broadcasting %s: %w", method, err)
	}
	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		// re-run as a call to surface the revert reason
		_, callErr := c.eth.CallContract(ctx, ethereum.CallMsg{
			From: c.sender,
			To:   &c.cfg.ContractAddress,
			Data: data,
		}, receipt.BlockNumber)
		if callErr != nil {
			return mapRevert(callErr)
		}
		return fmt.Errorf("eth: %s reverted without reason", method)
	}
	c.log.Debug().
		Str("method", method).
		Uint64("gas_used", receipt.GasUsed).
		Msg("transaction confirmed")
	return nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			head, err := c.eth.BlockNumber(ctx)
			if err == nil && confirmedHead(head, c.cfg.Confirmations) >= receipt.BlockNumber.Uint64() {
				return receipt, nil
			}
		} else if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("eth: awaiting receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// mapRevert translates a contract revert into the matching registry
// sentinel so the watcher's retry policy can tell reverts from transport
// failures.
func mapRevert(err error) error {
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return err
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	raw, decErr := hexutil.Decode(hexData)
	if decErr != nil || len(raw) < 4 {
		return err
	}
	var sel [4]byte
	copy(sel[:], raw[:4])
	name, ok := revertSelectors[sel]
	if !ok {
		return err
	}
	switch name {
	case "AlreadySubmitted":
		return registry.ErrAlreadySubmitted
	case "BadContribution":
		return registry.ErrBadContribution
	case "DeletedId":
		return registry.ErrDeletedID
	case "UnknownId":
		return registry.ErrUnknownID
	case "WrongRound":
		return registry.ErrWrongRound
	case "InvalidPoint":
		return registry.ErrInvalidPoint
	case "NotAProducer":
		return registry.ErrNotAProducer
	case "NotAParticipant":
		return registry.ErrNotAParticipant
	case "OnlyAdmin":
		return registry.ErrOnlyAdmin
	case "ProofInvalid":
		return keyproof.ErrProofVerification
	}
	return err
}

func pointFromWire(wp wirePoint) (curve.Point, error) {
	x, err := curve.BaseFromBig(wp.X)
	if err != nil {
		return curve.Point{}, err
	}
	y, err := curve.BaseFromBig(wp.Y)
	if err != nil {
		return curve.Point{}, err
	}
	return curve.NewPoint(x, y)
}

func ciphertextFromWire(wc wireCiphertext) (types.SecretGenCiphertext, error) {
	nonce, err := curve.BaseFromBig(wc.Nonce)
	if err != nil {
		return types.SecretGenCiphertext{}, err
	}
	cipher, err := curve.BaseFromBig(wc.Cipher)
	if err != nil {
		return types.SecretGenCiphertext{}, err
	}
	commitment, err := pointFromWire(wc.Commitment)
	if err != nil {
		return types.SecretGenCiphertext{}, err
	}
	return types.SecretGenCiphertext{Nonce: nonce, Cipher: cipher, Commitment: commitment}, nil
}

func pointToWire(p curve.Point) wirePoint {
	var x, y big.Int
	xe, ye := p.X(), p.Y()
	xe.BigInt(&x)
	ye.BigInt(&y)
	return wirePoint{X: &x, Y: &y}
}

func round1ToWire(c types.Round1Contribution) wireRound1 {
	w := wireRound1{
		EphPubKey:  pointToWire(c.EphPubKey),
		CommShare:  wirePoint{X: big.NewInt(0), Y: big.NewInt(0)},
		CommCoeffs: new(big.Int),
	}
	if c.CommShare != nil {
		w.CommShare = pointToWire(*c.CommShare)
	}
	coeffs := c.CommCoeffs
	coeffs.BigInt(w.CommCoeffs)
	return w
}

func round2ToWire(c types.Round2Contribution) wireRound2 {
	w := wireRound2{Ciphers: make([]wireCiphertext, len(c.Ciphers))}
	for i, word := range c.Proof {
		w.CompressedProof[i] = new(big.Int).SetBytes(word[:])
	}
	for i, cipher := range c.Ciphers {
		nonce, ct := cipher.Nonce, cipher.Cipher
		w.Ciphers[i] = wireCiphertext{
			Nonce:      nonce.BigInt(new(big.Int)),
			Cipher:     ct.BigInt(new(big.Int)),
			Commitment: pointToWire(cipher.Commitment),
		}
	}
	return w
}
