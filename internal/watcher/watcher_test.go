package watcher_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/internal/watcher"
	"github.com/TaceoLabs/oprf-service/pkg/chain"
	"github.com/TaceoLabs/oprf-service/pkg/keymat"
	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/polynomial"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/registry"
	"github.com/TaceoLabs/oprf-service/pkg/sharestore"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	keyID = types.OprfKeyID{0x42}
)

type nodeEnv struct {
	addr     common.Address
	client   *chain.SimClient
	store    *sharestore.MemoryStore
	material *keymat.Store
}

type cluster struct {
	reg   *registry.Registry
	nodes []*nodeEnv
}

func startCluster(t *testing.T) *cluster {
	t.Helper()
	reg, err := registry.New(keyproof.Params{Threshold: 2, NumPeers: 3}, keyproof.DevVerifier{}, admin)
	require.NoError(t, err)

	addrs := make([]common.Address, 3)
	for i := range addrs {
		addrs[i] = common.BytesToAddress([]byte{byte(i + 1)})
	}
	require.NoError(t, reg.RegisterOprfPeers(admin, addrs))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c := &cluster{reg: reg}
	for i, addr := range addrs {
		env := &nodeEnv{
			addr:     addr,
			client:   chain.NewSimClient(reg, addr),
			store:    sharestore.NewMemoryStore(),
			material: keymat.NewStore(nil),
		}
		w := watcher.New(watcher.Config{
			Client:         env.client,
			SecretGen:      watcher.NewSecretGen(party.ID(i), keyproof.DevProver{}, rand.Reader),
			Shares:         env.store,
			KeyMaterial:    env.material,
			Log:            zerolog.Nop(),
			SubmitAttempts: 3,
			RetryBase:      10 * time.Millisecond,
		})
		go func() { _ = w.Run(ctx) }()
		c.nodes = append(c.nodes, env)
	}
	return c
}

func (c *cluster) waitForEpoch(t *testing.T, epoch types.ShareEpoch) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, env := range c.nodes {
			rec, err := env.store.LoadShare(context.Background(), keyID)
			if err != nil || rec.Epoch != epoch {
				return false
			}
		}
		_, chainEpoch, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
		return err == nil && chainEpoch == epoch
	}, 10*time.Second, 10*time.Millisecond)
}

func (c *cluster) reconstruct(t *testing.T, ids []party.ID) curve.Point {
	t.Helper()
	coeffs, err := polynomial.Lagrange(ids, 2, 3)
	require.NoError(t, err)
	sum := curve.NewScalar()
	tmp := curve.NewScalar()
	for _, id := range ids {
		rec, err := c.nodes[id].store.LoadShare(context.Background(), keyID)
		require.NoError(t, err)
		tmp.Mul(rec.Share.Scalar(), coeffs[id])
		sum.Add(sum, tmp)
	}
	return curve.ScalarBaseMul(sum)
}

func TestEndToEndKeyGen(t *testing.T) {
	c := startCluster(t)
	require.NoError(t, c.reg.InitKeyGen(admin, keyID))
	c.waitForEpoch(t, 0)

	pk, _, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
	require.NoError(t, err)

	for _, ids := range [][]party.ID{{0, 1}, {0, 2}, {1, 2}} {
		assert.True(t, c.reconstruct(t, ids).Equal(pk), "subset %v", ids)
	}

	// stores agree on the public key
	for _, env := range c.nodes {
		rec, err := env.store.LoadShare(context.Background(), keyID)
		require.NoError(t, err)
		assert.True(t, rec.PublicKey.Equal(pk))
	}

	// in-memory key material loaded on finalize
	require.Eventually(t, func() bool {
		for _, env := range c.nodes {
			if _, ok := env.material.Get(keyID); !ok {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
}

func TestEndToEndReshare(t *testing.T) {
	c := startCluster(t)
	require.NoError(t, c.reg.InitKeyGen(admin, keyID))
	c.waitForEpoch(t, 0)
	pk, _, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
	require.NoError(t, err)

	require.NoError(t, c.reg.InitReshare(admin, keyID))
	c.waitForEpoch(t, 1)

	gotPK, epoch, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
	require.NoError(t, err)
	assert.True(t, gotPK.Equal(pk), "reshare must preserve the public key")
	assert.Equal(t, types.ShareEpoch(1), epoch)

	// new shares reconstruct the same key
	for _, ids := range [][]party.ID{{0, 1}, {0, 2}, {1, 2}} {
		assert.True(t, c.reconstruct(t, ids).Equal(pk), "subset %v", ids)
	}
}

func TestEndToEndDeletion(t *testing.T) {
	c := startCluster(t)
	require.NoError(t, c.reg.InitKeyGen(admin, keyID))
	c.waitForEpoch(t, 0)

	require.NoError(t, c.reg.DeleteOprfPublicKey(admin, keyID))
	require.Eventually(t, func() bool {
		for _, env := range c.nodes {
			_, err := env.store.LoadShare(context.Background(), keyID)
			if !errors.Is(err, sharestore.ErrTombstone) {
				return false
			}
			if _, ok := env.material.Get(keyID); ok {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
}

func TestEndToEndNotEnoughProducers(t *testing.T) {
	c := startCluster(t)
	require.NoError(t, c.reg.InitKeyGen(admin, keyID))
	c.waitForEpoch(t, 0)
	pk, _, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
	require.NoError(t, err)

	// lose every local share: all peers must register as consumers
	for _, env := range c.nodes {
		require.NoError(t, env.store.SoftDelete(context.Background(), keyID))
	}
	require.NoError(t, c.reg.InitReshare(admin, keyID))

	// the reshare aborts and the key stays at epoch 0
	require.Eventually(t, func() bool {
		gotPK, epoch, err := c.reg.GetOprfPublicKeyAndEpoch(keyID)
		if err != nil {
			return false
		}
		// a successful re-init proves the round aborted back to Finalized
		if err := c.reg.InitReshare(admin, keyID); err != nil {
			return false
		}
		return gotPK.Equal(pk) && epoch.IsInitial()
	}, 10*time.Second, 50*time.Millisecond)
}
