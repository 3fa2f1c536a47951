package secure

import "errors"

var (
	// ErrDecrypt reports a ciphertext that could not be decrypted, whether
	// from corruption, truncation or a mismatched key.
	ErrDecrypt = errors.New("secure: decryption failed")

	// ErrMalformed reports input that is not valid base64 or is too short
	// to contain the expected structure.
	ErrMalformed = errors.New("secure: malformed payload")

	// ErrKeySize reports an AES key that is not 32 bytes.
	ErrKeySize = errors.New("secure: session key must be 32 bytes")

	// ErrBadPublicKey reports a client public key that could not be parsed.
	ErrBadPublicKey = errors.New("secure: invalid public key")
)
