package sharestore

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// MemoryStore is an in-memory Store with the exact semantics of the
// Postgres implementation. Backs tests and dev runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	rows    map[types.OprfKeyID]*memoryRow
	address *common.Address
}

type memoryRow struct {
	share     []byte // nil iff deleted
	epoch     types.ShareEpoch
	publicKey curve.Point
	deleted   bool
	createdAt time.Time
	updatedAt time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[types.OprfKeyID]*memoryRow)}
}

// UpsertShare implements Store.
func (s *MemoryStore) UpsertShare(_ context.Context, id types.OprfKeyID, share keygen.Share, epoch types.ShareEpoch, publicKey curve.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	row, ok := s.rows[id]
	if !ok {
		s.rows[id] = &memoryRow{
			share:     share.Bytes(),
			epoch:     epoch,
			publicKey: publicKey,
			createdAt: now,
			updatedAt: now,
		}
		return nil
	}
	if !row.deleted && row.epoch > epoch {
		return ErrStaleWrite
	}
	row.share = share.Bytes()
	row.epoch = epoch
	row.publicKey = publicKey
	row.deleted = false
	row.updatedAt = now
	return nil
}

// LoadShare implements Store.
func (s *MemoryStore) LoadShare(_ context.Context, id types.OprfKeyID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if row.deleted {
		return Record{}, ErrTombstone
	}
	share, err := keygen.ShareFromBytes(row.share)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Share:     share,
		Epoch:     row.epoch,
		PublicKey: row.publicKey,
		CreatedAt: row.createdAt,
		UpdatedAt: row.updatedAt,
	}, nil
}

// SoftDelete implements Store.
func (s *MemoryStore) SoftDelete(_ context.Context, id types.OprfKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	for i := range row.share {
		row.share[i] = 0
	}
	row.share = nil
	row.deleted = true
	row.updatedAt = time.Now()
	return nil
}

// StoreAddress implements Store.
func (s *MemoryStore) StoreAddress(_ context.Context, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = &addr
	return nil
}

// LoadAddress implements Store.
func (s *MemoryStore) LoadAddress(_ context.Context) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address == nil {
		return common.Address{}, ErrNoAddress
	}
	return *s.address, nil
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error { return nil }
