// Package secure implements the transport encryption used by the socket
// layer. Each server process generates a fresh RSA-4096 keypair at startup;
// clients fetch the public key, encrypt their login request with it, and may
// hand over their own RSA public key plus an AES-256 session key inside that
// request. Once a session key is established all further traffic is
// AES-256-CBC with a random IV appended to the ciphertext.
//
// Keys never persist across restarts, so every client must re-fetch the
// public key after a server restart.
package secure
