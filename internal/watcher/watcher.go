package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaceoLabs/oprf-service/internal/metrics"
	"github.com/TaceoLabs/oprf-service/pkg/chain"
	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/keymat"
	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/registry"
	"github.com/TaceoLabs/oprf-service/pkg/sharestore"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Config wires a Watcher.
type Config struct {
	Client      chain.Client
	SecretGen   *SecretGen
	Shares      sharestore.Store
	KeyMaterial *keymat.Store
	Log         zerolog.Logger

	// SubmitAttempts bounds transaction retries; RetryBase is the constant
	// base of the exponential backoff.
	SubmitAttempts int
	RetryBase      time.Duration
}

// Watcher consumes confirmed registry events and runs the node's side of
// the protocol. Events are dispatched to one goroutine per OPRF key id, so
// state transitions within a key are serial while keys progress
// independently.
type Watcher struct {
	cfg Config
	log zerolog.Logger

	mu          sync.Mutex
	dispatchers map[types.OprfKeyID]chan registry.Event
	wg          sync.WaitGroup
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	if cfg.SubmitAttempts <= 0 {
		cfg.SubmitAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Watcher{
		cfg:         cfg,
		log:         cfg.Log.With().Str("task", "key-event-watcher").Logger(),
		dispatchers: make(map[types.OprfKeyID]chan registry.Event),
	}
}

// Run processes events until the stream closes or the context is
// cancelled. In-flight key dispatchers are drained before returning.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Msg("start handling events")
	defer func() {
		w.mu.Lock()
		for _, ch := range w.dispatchers {
			close(ch)
		}
		w.dispatchers = make(map[types.OprfKeyID]chan registry.Event)
		w.mu.Unlock()
		w.wg.Wait()
		w.log.Info().Msg("stopped key event watcher")
	}()

	events := w.cfg.Client.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if err := w.cfg.Client.Err(); err != nil {
					return err
				}
				return errors.New("watcher: event stream closed")
			}
			w.dispatch(ctx, ev)
		}
	}
}

// dispatch routes an event to its per-key queue. Admin events carry no key
// and are only logged.
func (w *Watcher) dispatch(ctx context.Context, ev registry.Event) {
	id, ok := eventKey(ev)
	if !ok {
		w.log.Info().Str("event", ev.Name()).Msg("administrative event")
		return
	}
	w.mu.Lock()
	ch, ok := w.dispatchers[id]
	if !ok {
		ch = make(chan registry.Event, 16)
		w.dispatchers[id] = ch
		w.wg.Add(1)
		go w.runKey(ctx, id, ch)
	}
	w.mu.Unlock()
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// runKey is the per-key dispatcher task: it owns the key's protocol
// progression and processes its events serially.
func (w *Watcher) runKey(ctx context.Context, id types.OprfKeyID, ch <-chan registry.Event) {
	defer w.wg.Done()
	log := w.log.With().Stringer("oprf_key_id", id).Logger()
	for ev := range ch {
		if ctx.Err() != nil {
			return
		}
		if err := w.handle(ctx, log, ev); err != nil {
			log.Error().Err(err).Str("event", ev.Name()).Msg("event handling failed")
		}
	}
}

func eventKey(ev registry.Event) (types.OprfKeyID, bool) {
	switch e := ev.(type) {
	case registry.SecretGenRound1:
		return e.KeyID, true
	case registry.SecretGenRound2:
		return e.KeyID, true
	case registry.SecretGenRound3:
		return e.KeyID, true
	case registry.SecretGenFinalize:
		return e.KeyID, true
	case registry.ReshareRound1:
		return e.KeyID, true
	case registry.ReshareRound3:
		return e.KeyID, true
	case registry.KeyDeletion:
		return e.KeyID, true
	case registry.NotEnoughProducers:
		return e.KeyID, true
	default:
		return types.OprfKeyID{}, false
	}
}

func (w *Watcher) handle(ctx context.Context, log zerolog.Logger, ev registry.Event) error {
	switch e := ev.(type) {
	case registry.SecretGenRound1:
		return w.onKeyGenRound1(ctx, log, e)
	case registry.ReshareRound1:
		return w.onReshareRound1(ctx, log, e)
	case registry.SecretGenRound2:
		return w.onRound2(ctx, log, e.KeyID)
	case registry.SecretGenRound3:
		return w.onRound3(ctx, log, e.KeyID, nil)
	case registry.ReshareRound3:
		return w.onRound3(ctx, log, e.KeyID, e.Lagrange)
	case registry.SecretGenFinalize:
		return w.onFinalize(ctx, log, e)
	case registry.KeyDeletion:
		return w.onDelete(ctx, log, e.KeyID)
	case registry.NotEnoughProducers:
		log.Warn().Msg("reshare aborted: not enough producers")
		w.cfg.SecretGen.Abort(e.KeyID)
		return nil
	default:
		log.Warn().Str("event", ev.Name()).Msg("unknown event")
		return nil
	}
}

func (w *Watcher) onKeyGenRound1(ctx context.Context, log zerolog.Logger, ev registry.SecretGenRound1) error {
	log.Info().Int("threshold", ev.Threshold).Msg("received SecretGenRound1 event")
	contribution, err := w.cfg.SecretGen.KeyGenRound1(ev.KeyID, ev.Threshold)
	if err != nil {
		return err
	}
	log.Debug().Msg("finished round1 - now reporting to chain")
	return w.submit(ctx, ev.KeyID, func() error {
		return w.cfg.Client.SubmitRound1KeyGen(ctx, ev.KeyID, contribution)
	})
}

func (w *Watcher) onReshareRound1(ctx context.Context, log zerolog.Logger, ev registry.ReshareRound1) error {
	log.Info().Int("threshold", ev.Threshold).Msg("received ReshareRound1 event")
	rec, err := w.cfg.Shares.LoadShare(ctx, ev.KeyID)
	var contribution types.Round1Contribution
	switch {
	case err == nil:
		contribution, err = w.cfg.SecretGen.ReshareRound1Producer(ev.KeyID, ev.Threshold, rec.Share)
		if err != nil {
			return err
		}
		log.Debug().Msg("volunteering as producer")
	case errors.Is(err, sharestore.ErrNotFound), errors.Is(err, sharestore.ErrTombstone):
		contribution = w.cfg.SecretGen.ReshareRound1Consumer(ev.KeyID)
		log.Debug().Msg("no stored share - registering as consumer")
	default:
		return err
	}
	return w.submit(ctx, ev.KeyID, func() error {
		return w.cfg.Client.SubmitRound1Reshare(ctx, ev.KeyID, contribution)
	})
}

func (w *Watcher) onRound2(ctx context.Context, log zerolog.Logger, id types.OprfKeyID) error {
	log.Info().Msg("received SecretGenRound2 event")
	recipients, err := w.cfg.Client.LoadPeerPublicKeysForProducers(ctx, id)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Debug().Msg("not a producer - dropping polynomial")
		w.cfg.SecretGen.ConsumerRound2(id)
		return nil
	}
	contribution, err := w.cfg.SecretGen.ProducerRound2(id, recipients)
	if err != nil {
		return err
	}
	log.Debug().Msg("finished round2 - now reporting to chain")
	err = w.submit(ctx, id, func() error {
		return w.cfg.Client.SubmitRound2(ctx, id, contribution)
	})
	if errors.Is(err, keyproof.ErrProofVerification) {
		metrics.ProofFailures.Inc()
	}
	return err
}

func (w *Watcher) onRound3(ctx context.Context, log zerolog.Logger, id types.OprfKeyID, lagrange []*curve.Scalar) error {
	log.Info().Msg("received round3 event")
	ciphers, err := w.cfg.Client.Round2Ciphers(ctx, id)
	if err != nil {
		return err
	}
	producerPKs, err := w.cfg.Client.LoadPeerPublicKeysForConsumers(ctx, id)
	if err != nil {
		return err
	}
	// the contract pads the reshare coefficients with zeros for consumers;
	// the nonzero entries line up with the producer-ordered ciphers
	if lagrange != nil {
		filtered := make([]*curve.Scalar, 0, len(ciphers))
		for _, l := range lagrange {
			if !l.IsZero() {
				filtered = append(filtered, l)
			}
		}
		lagrange = filtered
	}

	share, err := w.cfg.SecretGen.Round3(id, ciphers, producerPKs, lagrange)
	if err != nil {
		if errors.Is(err, keygen.ErrCommitmentMismatch) {
			metrics.CryptoFailures.Inc()
			log.Error().Err(err).Msg("ALARM: share failed commitment check - key must be regenerated")
		}
		return err
	}

	publicKey, epoch, err := w.cfg.Client.GetOprfPublicKeyAndEpoch(ctx, id)
	if err != nil {
		return err
	}
	if err := w.cfg.Shares.UpsertShare(ctx, id, share, epoch, publicKey); err != nil {
		return err
	}
	log.Debug().Stringer("epoch", epoch).Msg("persisted share - now acking")
	return w.submit(ctx, id, func() error {
		return w.cfg.Client.SubmitRound3(ctx, id)
	})
}

func (w *Watcher) onFinalize(ctx context.Context, log zerolog.Logger, ev registry.SecretGenFinalize) error {
	log.Info().Stringer("epoch", ev.Epoch).Msg("received SecretGenFinalize event")
	// drop the staged copy; the store row is authoritative from here on
	if share, err := w.cfg.SecretGen.Finalize(ev.KeyID); err == nil {
		share.Zeroize()
	}
	if w.cfg.KeyMaterial == nil {
		return nil
	}
	var rec sharestore.Record
	err := chain.Retry(ctx, w.cfg.SubmitAttempts, w.cfg.RetryBase, func(err error) bool {
		return errors.Is(err, sharestore.ErrNotFound)
	}, func() error {
		var lerr error
		rec, lerr = w.cfg.Shares.LoadShare(ctx, ev.KeyID)
		return lerr
	})
	if err != nil {
		return err
	}
	w.cfg.KeyMaterial.Insert(ev.KeyID, keymat.Material{
		Share:     rec.Share,
		PublicKey: rec.PublicKey,
		Epoch:     rec.Epoch,
	})
	return nil
}

func (w *Watcher) onDelete(ctx context.Context, log zerolog.Logger, id types.OprfKeyID) error {
	log.Info().Msg("received KeyDeletion event")
	w.cfg.SecretGen.Delete(id)
	if w.cfg.KeyMaterial != nil {
		w.cfg.KeyMaterial.Remove(id)
	}
	return w.cfg.Shares.SoftDelete(ctx, id)
}

// submit sends a transaction with bounded exponential backoff. Contract
// reverts are not retried: the registry already rejected the contribution
// and a byte-identical resubmission cannot succeed.
func (w *Watcher) submit(ctx context.Context, id types.OprfKeyID, fn func() error) error {
	return chain.Retry(ctx, w.cfg.SubmitAttempts, w.cfg.RetryBase, func(err error) bool {
		if isRevert(err) {
			return false
		}
		metrics.TransactionRetries.Inc()
		return true
	}, fn)
}

func isRevert(err error) bool {
	for _, sentinel := range []error{
		registry.ErrAlreadySubmitted,
		registry.ErrBadContribution,
		registry.ErrDeletedID,
		registry.ErrUnknownID,
		registry.ErrWrongRound,
		registry.ErrInvalidPoint,
		registry.ErrNotAProducer,
		registry.ErrNotAParticipant,
		keyproof.ErrProofVerification,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
