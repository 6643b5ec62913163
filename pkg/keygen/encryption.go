package keygen

import (
	"errors"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/TaceoLabs/oprf-service/pkg/math/curve"
	"github.com/TaceoLabs/oprf-service/pkg/math/poseidon"
	"github.com/TaceoLabs/oprf-service/pkg/math/sample"
)

var (
	// ErrCipherOutOfRange is returned when a decrypted value does not fit
	// into the scalar field. This only happens under a wrong key or nonce.
	ErrCipherOutOfRange = errors.New("keygen: decrypted share out of scalar range")
	// ErrCommitmentMismatch is returned when a decrypted share does not
	// match the sender's commitment. Non-recoverable for the key
	// generation in question.
	ErrCommitmentMismatch = errors.New("keygen: share does not match commitment")
)

// DeriveKey computes the x coordinate of the Diffie-Hellman point
// mySK·theirPK, the symmetric key of the share cipher.
func DeriveKey(mySK *curve.Scalar, theirPK curve.Point) fr.Element {
	return theirPK.ScalarMul(mySK).X()
}

// EncryptShare encrypts a share under the symmetric key and nonce:
// cipher = share + keystream(ds, key, nonce), all over the base field.
func EncryptShare(key fr.Element, share Share, nonce fr.Element) fr.Element {
	ks := poseidon.CipherKeystream(key, nonce)
	base := share.Scalar().Base()
	var cipher fr.Element
	cipher.Add(&base, &ks)
	return cipher
}

// DecryptShare inverts EncryptShare. It fails with ErrCipherOutOfRange when
// the recovered base field element does not fit into the scalar field, which
// under an honest sender only happens with a wrong key or nonce.
func DecryptShare(key fr.Element, cipher, nonce fr.Element) (Share, error) {
	ks := poseidon.CipherKeystream(key, nonce)
	var plain fr.Element
	plain.Sub(&cipher, &ks)
	s, err := curve.ScalarFromBase(plain)
	if err != nil {
		return Share{}, ErrCipherOutOfRange
	}
	return NewShare(s), nil
}

// DecryptAndVerifyShare decrypts the ciphertext with the Diffie-Hellman key
// of (mySK, theirPK) and checks the plaintext against the sender's
// commitment s·G. Returns ErrCommitmentMismatch on failure.
func DecryptAndVerifyShare(mySK *curve.Scalar, theirPK curve.Point, cipher, nonce fr.Element, commitment curve.Point) (Share, error) {
	key := DeriveKey(mySK, theirPK)
	share, err := DecryptShare(key, cipher, nonce)
	if err != nil {
		return Share{}, err
	}
	if !share.Commit().Equal(commitment) {
		share.Zeroize()
		return Share{}, ErrCommitmentMismatch
	}
	return share, nil
}

// NonceSource draws encryption nonces and enforces uniqueness within its
// lifetime, which spans one (sender, epoch) pair. Nonce reuse under the same
// Diffie-Hellman key would reveal the difference of two shares.
type NonceSource struct {
	mu   sync.Mutex
	rand io.Reader
	seen map[[32]byte]struct{}
}

// NewNonceSource creates a nonce source drawing from r.
func NewNonceSource(r io.Reader) *NonceSource {
	return &NonceSource{
		rand: r,
		seen: make(map[[32]byte]struct{}),
	}
}

// Next returns a fresh nonce, never repeating a previously returned value.
func (n *NonceSource) Next() fr.Element {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		nonce := sample.BaseElement(n.rand)
		key := nonce.Bytes()
		if _, ok := n.seen[key]; ok {
			continue
		}
		n.seen[key] = struct{}{}
		return nonce
	}
}
