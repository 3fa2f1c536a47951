package secure

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

const rsaBits = 4096

// KeyPair holds the server's per-process RSA keypair. The private key stays
// in memory only; a restart invalidates every key a client has cached.
type KeyPair struct {
	private   *rsa.PrivateKey
	publicB64 string
}

// GenerateKeyPair creates a fresh RSA-4096 keypair. Generation takes a few
// seconds, so it runs once at startup.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return &KeyPair{
		private:   priv,
		publicB64: base64.StdEncoding.EncodeToString(der),
	}, nil
}

// PublicKey returns the public half as base64-encoded SPKI DER, the form
// clients receive over the wire.
func (k *KeyPair) PublicKey() string {
	return k.publicB64
}

// Decrypt decrypts a base64 ciphertext that a client encrypted with the
// server's public key. Any failure maps to ErrMalformed or ErrDecrypt so
// callers never leak padding details to the client.
func (k *KeyPair) Decrypt(ciphertextB64 string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrMalformed
	}
	plain, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, k.private, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// EncryptForPeer encrypts a message with a client's RSA public key, supplied
// as base64 SPKI DER. RSA can only carry short payloads, so this is used for
// the login response only; bulk traffic goes through the AES session key.
func EncryptForPeer(peerKeyB64 string, plaintext []byte) (string, error) {
	der, err := base64.StdEncoding.DecodeString(peerKeyB64)
	if err != nil {
		return "", ErrBadPublicKey
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", ErrBadPublicKey
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", ErrBadPublicKey
	}
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, rsaPub, plaintext, nil)
	if err != nil {
		return "", fmt.Errorf("encrypt for peer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}
