package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	// SessionKeyLen is the required length of a client session key.
	SessionKeyLen = 32

	// A 16-byte IV always encodes to exactly 24 base64 characters, which is
	// how the two halves of the payload are split on decrypt.
	ivB64Len = 24
)

// SymmetricEncrypt encrypts plaintext with AES-256-CBC under the given
// session key. A fresh random IV is generated per call and appended to the
// base64 ciphertext, so the wire format is base64(ciphertext)+base64(iv).
func SymmetricEncrypt(key, plaintext []byte) (string, error) {
	if len(key) != SessionKeyLen {
		return "", ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}
	padded := padPKCS7(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return base64.StdEncoding.EncodeToString(ct) + base64.StdEncoding.EncodeToString(iv), nil
}

// SymmetricDecrypt reverses SymmetricEncrypt. The trailing 24 characters of
// the payload are the base64 IV; everything before them is the ciphertext.
// A wrong key surfaces as ErrDecrypt through the padding check.
func SymmetricDecrypt(key []byte, payload string) ([]byte, error) {
	if len(key) != SessionKeyLen {
		return nil, ErrKeySize
	}
	if len(payload) <= ivB64Len {
		return nil, ErrMalformed
	}
	iv, err := base64.StdEncoding.DecodeString(payload[len(payload)-ivB64Len:])
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(payload[:len(payload)-ivB64Len])
	if err != nil {
		return nil, ErrMalformed
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrMalformed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	return unpadPKCS7(plain, aes.BlockSize)
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrDecrypt
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrDecrypt
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrDecrypt
		}
	}
	return data[:len(data)-n], nil
}
