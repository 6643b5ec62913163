// Package sharestore persists the node's long-term OPRF key shares:
// epoch-versioned, soft-deleted rows keyed by OPRF key id, plus the
// singleton wallet address of the process.
package sharestore

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

var (
	// ErrNotFound is returned when no row exists for the id.
	ErrNotFound = errors.New("sharestore: share not found")
	// ErrTombstone is returned when the row exists but was soft-deleted.
	ErrTombstone = errors.New("sharestore: share is deleted")
	// ErrStaleWrite is returned when an upsert carries a strictly smaller
	// epoch than the stored row.
	ErrStaleWrite = errors.New("sharestore: stored epoch is newer")
	// ErrNoAddress is returned when the wallet address row is missing.
	ErrNoAddress = errors.New("sharestore: wallet address not stored")
)

// Record is one live share row.
type Record struct {
	Share     keygen.Share
	Epoch     types.ShareEpoch
	PublicKey curve.Point
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the share persistence contract. At most one live row exists per
// OPRF key id; reshares update the same row atomically.
type Store interface {
	// UpsertShare inserts or replaces the row for id. Rows with a strictly
	// greater stored epoch reject the write with ErrStaleWrite.
	UpsertShare(ctx context.Context, id types.OprfKeyID, share keygen.Share, epoch types.ShareEpoch, publicKey curve.Point) error

	// LoadShare returns the live row, ErrTombstone for a soft-deleted row,
	// or ErrNotFound.
	LoadShare(ctx context.Context, id types.OprfKeyID) (Record, error)

	// SoftDelete tombstones the row, clearing the share. Unknown ids are a
	// no-op: deletion events may arrive for keys this node never stored.
	SoftDelete(ctx context.Context, id types.OprfKeyID) error

	// StoreAddress persists the process wallet address into the singleton
	// row.
	StoreAddress(ctx context.Context, addr common.Address) error

	// LoadAddress returns the stored wallet address or ErrNoAddress.
	LoadAddress(ctx context.Context) (common.Address, error)

	// Close releases the underlying resources.
	Close(ctx context.Context) error
}
