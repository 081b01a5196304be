// Package hpke wraps RFC 9180 hybrid public-key encryption with the cipher
// suite this service fixes at build time: X25519-HKDF-SHA256 KEM,
// HKDF-SHA384 KDF, ChaCha20-Poly1305 AEAD.
//
// Request bodies are encrypted by clients to the user's stored public key;
// responses are encrypted to an ephemeral per-round-trip key the client
// supplies. The request path rides along as AAD so a ciphertext replayed
// against a different endpoint fails authentication.
package hpke

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
)

const (
	kemID  = hpke.KEM_X25519_HKDF_SHA256
	kdfID  = hpke.KDF_HKDF_SHA384
	aeadID = hpke.AEAD_ChaCha20Poly1305
)

// info binds ciphertexts to this protocol; changing it invalidates every
// stored key's traffic.
var info = []byte("syncstore hpke v1")

var (
	ErrDecrypt    = errors.New("hpke decryption failed")
	ErrInvalidKey = errors.New("invalid hpke key material")
)

func suite() hpke.Suite {
	return hpke.NewSuite(kemID, kdfID, aeadID)
}

// GenerateKeyPair returns a fresh (secretKey, publicKey) pair in wire form.
func GenerateKeyPair() (secret []byte, public []byte, err error) {
	pk, sk, err := kemID.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generating hpke keypair: %w", err)
	}
	secret, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling secret key: %w", err)
	}
	public, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return secret, public, nil
}

// Encrypt seals plaintext to the given public key with aad as additional
// authenticated data, returning the encapsulated key and the ciphertext.
// Each call uses a fresh ephemeral sender key, so two encryptions of the
// same input differ.
func Encrypt(plaintext, publicKey, aad []byte) (encappedKey []byte, ciphertext []byte, err error) {
	pk, err := kemID.Scheme().UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sender, err := suite().NewSender(pk, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke sender setup: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke sender setup: %w", err)
	}

	ct, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke seal: %w", err)
	}
	return enc, ct, nil
}

// Decrypt opens a ciphertext produced by Encrypt given the receiver's
// secret key, the encapsulated key, and the same aad.
func Decrypt(ciphertext, encappedKey, secretKey, aad []byte) ([]byte, error) {
	sk, err := kemID.Scheme().UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	receiver, err := suite().NewReceiver(sk, info)
	if err != nil {
		return nil, fmt.Errorf("hpke receiver setup: %w", err)
	}
	opener, err := receiver.Setup(encappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	plaintext, err := opener.Open(ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}
