package sharestore_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/sharestore"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

var keyID = types.OprfKeyID{0x07}

func newShare() (keygen.Share, curve.Point) {
	s := sample.Scalar(rand.Reader)
	return keygen.NewShare(s), curve.ScalarBaseMul(s)
}

func TestUpsertAndLoad(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()
	share, pk := newShare()

	require.NoError(t, store.UpsertShare(ctx, keyID, share, 0, pk))
	rec, err := store.LoadShare(ctx, keyID)
	require.NoError(t, err)
	assert.True(t, rec.Share.Scalar().Equal(share.Scalar()))
	assert.True(t, rec.PublicKey.Equal(pk))
	assert.Equal(t, types.ShareEpoch(0), rec.Epoch)
}

func TestLoadUnknown(t *testing.T) {
	store := sharestore.NewMemoryStore()
	_, err := store.LoadShare(context.Background(), keyID)
	assert.ErrorIs(t, err, sharestore.ErrNotFound)
}

func TestReshareUpdatesSameRow(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()
	share0, pk := newShare()
	share1, _ := newShare()

	require.NoError(t, store.UpsertShare(ctx, keyID, share0, 0, pk))
	require.NoError(t, store.UpsertShare(ctx, keyID, share1, 1, pk))

	rec, err := store.LoadShare(ctx, keyID)
	require.NoError(t, err)
	assert.Equal(t, types.ShareEpoch(1), rec.Epoch)
	assert.True(t, rec.Share.Scalar().Equal(share1.Scalar()))
}

func TestStaleWriteRejected(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()
	share0, pk := newShare()
	share1, _ := newShare()

	require.NoError(t, store.UpsertShare(ctx, keyID, share0, 2, pk))
	err := store.UpsertShare(ctx, keyID, share1, 1, pk)
	assert.ErrorIs(t, err, sharestore.ErrStaleWrite)

	// equal epoch replaces
	require.NoError(t, store.UpsertShare(ctx, keyID, share1, 2, pk))
}

func TestSoftDeleteLeavesNoReadableShare(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()
	share, pk := newShare()

	require.NoError(t, store.UpsertShare(ctx, keyID, share, 0, pk))
	require.NoError(t, store.SoftDelete(ctx, keyID))
	_, err := store.LoadShare(ctx, keyID)
	assert.ErrorIs(t, err, sharestore.ErrTombstone)

	// deleting an unknown id is a no-op
	require.NoError(t, store.SoftDelete(ctx, types.OprfKeyID{0xff}))
}

func TestUpsertRevivesTombstone(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()
	share, pk := newShare()

	require.NoError(t, store.UpsertShare(ctx, keyID, share, 3, pk))
	require.NoError(t, store.SoftDelete(ctx, keyID))

	// a fresh generation may restart at a lower epoch after deletion
	fresh, freshPK := newShare()
	require.NoError(t, store.UpsertShare(ctx, keyID, fresh, 0, freshPK))
	rec, err := store.LoadShare(ctx, keyID)
	require.NoError(t, err)
	assert.Equal(t, types.ShareEpoch(0), rec.Epoch)
}

func TestWalletAddressSingleton(t *testing.T) {
	store := sharestore.NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadAddress(ctx)
	assert.ErrorIs(t, err, sharestore.ErrNoAddress)

	first := common.BytesToAddress([]byte{0x01})
	second := common.BytesToAddress([]byte{0x02})
	require.NoError(t, store.StoreAddress(ctx, first))
	require.NoError(t, store.StoreAddress(ctx, second))

	got, err := store.LoadAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestShareEncodingRoundTrip(t *testing.T) {
	share, _ := newShare()
	got, err := keygen.ShareFromBytes(share.Bytes())
	require.NoError(t, err)
	assert.True(t, share.Scalar().Equal(got.Scalar()))
}
