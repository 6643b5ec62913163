package keyproof_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TaceoLabs/oprf-service/pkg/keygen"
	"github.com/TaceoLabs/oprf-service/pkg/keyproof"
	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
	"github.com/TaceoLabs/oprf-service/pkg/party"
	"github.com/TaceoLabs/oprf-service/pkg/types"
)

func TestSupportedParams(t *testing.T) {
	assert.True(t, keyproof.Supported(keyproof.Params{Threshold: 2, NumPeers: 3}))
	assert.True(t, keyproof.Supported(keyproof.Params{Threshold: 3, NumPeers: 5}))
	assert.False(t, keyproof.Supported(keyproof.Params{Threshold: 2, NumPeers: 4}))
	assert.Error(t, keyproof.Params{Threshold: 4, NumPeers: 7}.Validate())
}

func TestNumPublicInputs(t *testing.T) {
	assert.Equal(t, 24, keyproof.NumPublicInputs(3))
	assert.Equal(t, 36, keyproof.NumPublicInputs(5))
}

func buildContribution(t *testing.T, p keyproof.Params) (curve.Point, *keygen.Poly, []types.SecretGenCiphertext, []curve.Point) {
	t.Helper()
	poly := keygen.NewPoly(rand.Reader, p.Threshold-1)
	esk, epk := sample.ScalarPointPair(rand.Reader)

	recipients := make([]curve.Point, p.NumPeers)
	for i := range recipients {
		_, recipients[i] = sample.ScalarPointPair(rand.Reader)
	}

	nonces := keygen.NewNonceSource(rand.Reader)
	ciphers := make([]types.SecretGenCiphertext, p.NumPeers)
	for j := range ciphers {
		nonce := nonces.Next()
		commitment, cipher, err := poly.GenShare(party.ID(j), esk, recipients[j], nonce)
		require.NoError(t, err)
		ciphers[j] = types.SecretGenCiphertext{Nonce: nonce, Cipher: cipher, Commitment: commitment}
	}
	return epk, poly, ciphers, recipients
}

func TestAssembleLayout(t *testing.T) {
	p := keyproof.Params{Threshold: 2, NumPeers: 3}
	epk, poly, ciphers, recipients := buildContribution(t, p)

	inputs, err := keyproof.Assemble(p, epk, poly.CommShare(), poly.CommCoeffs(), ciphers, recipients)
	require.NoError(t, err)
	require.Len(t, inputs, keyproof.NumPublicInputs(p.NumPeers))

	n := p.NumPeers
	assert.Equal(t, epk.X(), inputs[0])
	assert.Equal(t, epk.Y(), inputs[1])
	assert.Equal(t, poly.CommShare().X(), inputs[2])
	assert.Equal(t, poly.CommShare().Y(), inputs[3])
	assert.Equal(t, poly.CommCoeffs(), inputs[4])
	for i := 0; i < n; i++ {
		assert.Equal(t, ciphers[i].Cipher, inputs[5+i])
		assert.Equal(t, ciphers[i].Commitment.X(), inputs[5+n+2*i])
		assert.Equal(t, ciphers[i].Commitment.Y(), inputs[5+n+2*i+1])
		assert.Equal(t, recipients[i].X(), inputs[5+3*n+1+2*i])
		assert.Equal(t, recipients[i].Y(), inputs[5+3*n+1+2*i+1])
		assert.Equal(t, ciphers[i].Nonce, inputs[5+5*n+1+i])
	}
	assert.Equal(t, uint64(p.Threshold-1), inputs[5+3*n].Uint64())
}

func TestAssembleRejectsWrongCounts(t *testing.T) {
	p := keyproof.Params{Threshold: 2, NumPeers: 3}
	epk, poly, ciphers, recipients := buildContribution(t, p)
	_, err := keyproof.Assemble(p, epk, poly.CommShare(), poly.CommCoeffs(), ciphers[:2], recipients)
	assert.ErrorIs(t, err, keyproof.ErrLayout)
	_, err = keyproof.Assemble(keyproof.Params{Threshold: 2, NumPeers: 4}, epk, poly.CommShare(), poly.CommCoeffs(), ciphers, recipients)
	assert.Error(t, err)
}

func TestDevProverRoundTrip(t *testing.T) {
	p := keyproof.Params{Threshold: 2, NumPeers: 3}
	epk, poly, ciphers, recipients := buildContribution(t, p)
	inputs, err := keyproof.Assemble(p, epk, poly.CommShare(), poly.CommCoeffs(), ciphers, recipients)
	require.NoError(t, err)

	proof, err := keyproof.DevProver{}.Prove(inputs)
	require.NoError(t, err)
	require.NoError(t, keyproof.DevVerifier{}.Verify(proof, inputs))
}

func TestDevVerifierRejectsTamperedInput(t *testing.T) {
	p := keyproof.Params{Threshold: 2, NumPeers: 3}
	epk, poly, ciphers, recipients := buildContribution(t, p)
	inputs, err := keyproof.Assemble(p, epk, poly.CommShare(), poly.CommCoeffs(), ciphers, recipients)
	require.NoError(t, err)

	proof, err := keyproof.DevProver{}.Prove(inputs)
	require.NoError(t, err)

	// flip one cipher element
	inputs[5].Add(&inputs[5], &inputs[4])
	assert.ErrorIs(t, keyproof.DevVerifier{}.Verify(proof, inputs), keyproof.ErrProofVerification)
}
