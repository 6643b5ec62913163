package keygen_test

import (
	"crypto/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/polynomial"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/party"
)

// runKeyGen executes the cryptographic core of a DKG between numPeers
// parties with the given threshold and returns the per-peer combined shares
// together with the aggregated public key.
func runKeyGen(t *testing.T, numPeers, threshold int) ([]keygen.Share, curve.Point) {
	t.Helper()

	esks := make([]*curve.Scalar, numPeers)
	epks := make([]curve.Point, numPeers)
	for i := range esks {
		esks[i], epks[i] = sample.ScalarPointPair(rand.Reader)
	}

	polys := make([]*keygen.Poly, numPeers)
	for i := range polys {
		polys[i] = keygen.NewPoly(rand.Reader, threshold-1)
	}

	// aggregate public key from the round-1 commitments
	aggregate := curve.Identity()
	for _, p := range polys {
		aggregate = aggregate.Add(p.CommShare())
	}

	// round 2: every party encrypts a share for every recipient
	nonces := keygen.NewNonceSource(rand.Reader)
	ciphers := make([][]cipherEntry, numPeers)
	for i, p := range polys {
		ciphers[i] = make([]cipherEntry, numPeers)
		for j := 0; j < numPeers; j++ {
			nonce := nonces.Next()
			commitment, cipher, err := p.GenShare(party.ID(j), esks[i], epks[j], nonce)
			require.NoError(t, err)
			ciphers[i][j] = cipherEntry{nonce: nonce, cipher: cipher, commitment: commitment}
		}
	}

	// round 3: every party decrypts and combines its shares
	shares := make([]keygen.Share, numPeers)
	for j := 0; j < numPeers; j++ {
		received := make([]keygen.Share, numPeers)
		for i := 0; i < numPeers; i++ {
			share, err := keygen.DecryptAndVerifyShare(
				esks[j], epks[i], ciphers[i][j].cipher, ciphers[i][j].nonce, ciphers[i][j].commitment)
			require.NoError(t, err)
			received[i] = share
		}
		shares[j] = keygen.AccumulateShares(received)
	}
	return shares, aggregate
}

type cipherEntry struct {
	nonce      fr.Element
	cipher     fr.Element
	commitment curve.Point
}

func reconstruct(t *testing.T, shares []keygen.Share, ids []party.ID, threshold, numPeers int) *curve.Scalar {
	t.Helper()
	coeffs, err := polynomial.Lagrange(ids, threshold, numPeers)
	require.NoError(t, err)
	sum := curve.NewScalar()
	tmp := curve.NewScalar()
	for _, id := range ids {
		tmp.Mul(shares[id].Scalar(), coeffs[id])
		sum.Add(sum, tmp)
	}
	return sum
}

func TestDistributedKeyGen(t *testing.T) {
	const (
		numPeers  = 3
		threshold = 2
	)
	shares, aggregate := runKeyGen(t, numPeers, threshold)

	// reconstruction soundness: every t-subset yields the aggregate secret
	for _, ids := range [][]party.ID{{0, 1}, {0, 2}, {1, 2}} {
		secret := reconstruct(t, shares, ids, threshold, numPeers)
		assert.True(t, curve.ScalarBaseMul(secret).Equal(aggregate), "subset %v", ids)
	}
}

func TestDistributedKeyGenLarger(t *testing.T) {
	const (
		numPeers  = 5
		threshold = 3
	)
	shares, aggregate := runKeyGen(t, numPeers, threshold)
	secret := reconstruct(t, shares, []party.ID{0, 2, 4}, threshold, numPeers)
	assert.True(t, curve.ScalarBaseMul(secret).Equal(aggregate))
}

func TestResharePreservesSecretAndKey(t *testing.T) {
	const (
		numPeers  = 3
		threshold = 2
	)
	oldShares, aggregate := runKeyGen(t, numPeers, threshold)
	oldSecret := reconstruct(t, oldShares, []party.ID{0, 1}, threshold, numPeers)

	// peers 0 and 2 volunteer as producers
	producers := []party.ID{0, 2}
	lagrangeFull, err := polynomial.Lagrange(producers, threshold, numPeers)
	require.NoError(t, err)

	esks := make([]*curve.Scalar, numPeers)
	epks := make([]curve.Point, numPeers)
	for i := range esks {
		esks[i], epks[i] = sample.ScalarPointPair(rand.Reader)
	}

	polys := make(map[party.ID]*keygen.Poly, len(producers))
	for _, p := range producers {
		polys[p] = keygen.ResharePoly(rand.Reader, oldShares[p], threshold-1)
		// the contract checks this commitment against the stored one
		assert.True(t, polys[p].CommShare().Equal(oldShares[p].Commit()))
	}

	nonces := keygen.NewNonceSource(rand.Reader)
	newShares := make([]keygen.Share, numPeers)
	for j := 0; j < numPeers; j++ {
		received := make([]keygen.Share, 0, len(producers))
		weights := make([]*curve.Scalar, 0, len(producers))
		for _, i := range producers {
			nonce := nonces.Next()
			commitment, cipher, err := polys[i].GenShare(party.ID(j), esks[i], epks[j], nonce)
			require.NoError(t, err)
			share, err := keygen.DecryptAndVerifyShare(esks[j], epks[i], cipher, nonce, commitment)
			require.NoError(t, err)
			received = append(received, share)
			weights = append(weights, lagrangeFull[i])
		}
		newShares[j] = keygen.AccumulateLagrangeShares(received, weights)
	}

	// reshare preserves the secret for any new t-subset
	for _, ids := range [][]party.ID{{0, 1}, {1, 2}, {0, 2}} {
		newSecret := reconstruct(t, newShares, ids, threshold, numPeers)
		assert.True(t, oldSecret.Equal(newSecret), "subset %v", ids)
		assert.True(t, curve.ScalarBaseMul(newSecret).Equal(aggregate), "subset %v", ids)
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	skA, pkA := sample.ScalarPointPair(rand.Reader)
	skB, pkB := sample.ScalarPointPair(rand.Reader)

	// both sides derive the same symmetric key
	keyAB := keygen.DeriveKey(skA, pkB)
	keyBA := keygen.DeriveKey(skB, pkA)
	assert.Equal(t, keyAB, keyBA)

	share := keygen.NewShare(sample.Scalar(rand.Reader))
	nonce := sample.BaseElement(rand.Reader)
	cipher := keygen.EncryptShare(keyAB, share, nonce)

	got, err := keygen.DecryptShare(keyBA, cipher, nonce)
	require.NoError(t, err)
	assert.True(t, share.Scalar().Equal(got.Scalar()))
}

func TestDecryptWrongKeyFailsCommitment(t *testing.T) {
	skA, _ := sample.ScalarPointPair(rand.Reader)
	_, pkB := sample.ScalarPointPair(rand.Reader)
	skEve, pkEve := sample.ScalarPointPair(rand.Reader)

	share := keygen.NewShare(sample.Scalar(rand.Reader))
	nonce := sample.BaseElement(rand.Reader)
	cipher := keygen.EncryptShare(keygen.DeriveKey(skA, pkB), share, nonce)

	_, err := keygen.DecryptAndVerifyShare(skEve, pkEve, cipher, nonce, share.Commit())
	assert.Error(t, err)
}

func TestCommitCoeffsBindsCoefficients(t *testing.T) {
	coeffs := []*curve.Scalar{
		curve.NewScalarUint64(1),
		curve.NewScalarUint64(2),
		curve.NewScalarUint64(3),
		curve.NewScalarUint64(4),
	}
	d1 := keygen.CommitCoeffs(coeffs)
	coeffs[3] = curve.NewScalarUint64(5)
	d2 := keygen.CommitCoeffs(coeffs)
	assert.NotEqual(t, d1, d2)
}

func TestNonceSourceNeverRepeats(t *testing.T) {
	nonces := keygen.NewNonceSource(rand.Reader)
	seen := make(map[[32]byte]struct{})
	for i := 0; i < 128; i++ {
		n := nonces.Next()
		key := n.Bytes()
		_, dup := seen[key]
		require.False(t, dup)
		seen[key] = struct{}{}
	}
}

func TestShareStringRedacted(t *testing.T) {
	share := keygen.NewShare(sample.Scalar(rand.Reader))
	assert.Equal(t, "Share(REDACTED)", share.String())
}
