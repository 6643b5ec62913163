// Package keymat holds the node's live OPRF key material in memory and
// keeps it current across externally executed reshares.
package keymat

import (
	"sync"

	"github.com/TaceoLabs/oprf-service/internal/metrics"
	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

// Material is the cryptographic material of one OPRF key: the node's share,
// the public key, and the share epoch.
type Material struct {
	Share     keygen.Share
	PublicKey curve.Point
	Epoch     types.ShareEpoch
}

// Store is a thread-safe map of live key material.
type Store struct {
	mu   sync.RWMutex
	keys map[types.OprfKeyID]Material
}

// NewStore creates a store preloaded with the provided material.
func NewStore(initial map[types.OprfKeyID]Material) *Store {
	keys := make(map[types.OprfKeyID]Material, len(initial))
	for id, m := range initial {
		keys[id] = m
	}
	metrics.SharesHeld.Set(float64(len(keys)))
	return &Store{keys: keys}
}

// Get returns the material for id.
func (s *Store) Get(id types.OprfKeyID) (Material, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.keys[id]
	return m, ok
}

// Insert adds or overwrites the material for id.
func (s *Store) Insert(id types.OprfKeyID, m Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		metrics.SharesHeld.Inc()
	}
	s.keys[id] = m
}

// Swap replaces the material for id only if the new epoch is strictly
// newer. Returns false for regressions (e.g. a reorged chain read).
func (s *Store) Swap(id types.OprfKeyID, m Material) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.keys[id]
	if ok && old.Epoch >= m.Epoch {
		return false
	}
	if !ok {
		metrics.SharesHeld.Inc()
	} else {
		old.Share.Zeroize()
	}
	s.keys[id] = m
	return true
}

// Remove drops the material for id, zeroizing the share.
func (s *Store) Remove(id types.OprfKeyID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.keys[id]; ok {
		m.Share.Zeroize()
		delete(s.keys, id)
		metrics.SharesHeld.Dec()
	}
}

// IDs returns a snapshot of the held key ids.
func (s *Store) IDs() []types.OprfKeyID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.OprfKeyID, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of held keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
