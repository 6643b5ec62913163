package keymat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/TaceoLabs/oprf-service/internal/metrics"
	"github.com/TaceoLabs/oprf-service/pkg/chain"
	"github.com/TaceoLabs/oprf-service/pkg/sharestore"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// DefaultRefreshInterval is the default poll interval of the refresh loop.
const DefaultRefreshInterval = 5 * time.Second

// Refresher periodically reconciles the in-memory key material with the
// chain: when the on-chain epoch of a held key advances (a reshare executed
// elsewhere), the new share is loaded from the store and swapped in
// atomically. Older on-chain epochs (reorg) are rejected.
type Refresher struct {
	store    *Store
	shares   sharestore.Store
	reader   chain.Reader
	interval time.Duration
	log      zerolog.Logger
}

// NewRefresher wires a refresh loop. A non-positive interval falls back to
// the default.
func NewRefresher(store *Store, shares sharestore.Store, reader chain.Reader, interval time.Duration, log zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		store:    store,
		shares:   shares,
		reader:   reader,
		interval: interval,
		log:      log.With().Str("task", "share-refresh").Logger(),
	}
}

// Run polls until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, id := range r.store.IDs() {
		if err := r.refreshOne(ctx, id); err != nil {
			r.log.Warn().Err(err).Stringer("oprf_key_id", id).Msg("refresh failed")
		}
	}
}

func (r *Refresher) refreshOne(ctx context.Context, id types.OprfKeyID) error {
	current, ok := r.store.Get(id)
	if !ok {
		return nil
	}
	_, chainEpoch, err := r.reader.GetOprfPublicKeyAndEpoch(ctx, id)
	if err != nil {
		return err
	}
	if chainEpoch == current.Epoch {
		return nil
	}
	if chainEpoch < current.Epoch {
		r.log.Warn().
			Stringer("oprf_key_id", id).
			Uint32("cached", uint32(current.Epoch)).
			Uint32("chain", uint32(chainEpoch)).
			Msg("rejecting epoch regression")
		return nil
	}
	rec, err := r.shares.LoadShare(ctx, id)
	if errors.Is(err, sharestore.ErrNotFound) || errors.Is(err, sharestore.ErrTombstone) {
		// reshared elsewhere but not yet persisted locally; next tick
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Epoch != chainEpoch {
		return nil
	}
	if r.store.Swap(id, Material{Share: rec.Share, PublicKey: rec.PublicKey, Epoch: rec.Epoch}) {
		metrics.ShareRefreshes.Inc()
		r.log.Info().
			Stringer("oprf_key_id", id).
			Uint32("epoch", uint32(rec.Epoch)).
			Msg("swapped in reshared share")
	}
	return nil
}
