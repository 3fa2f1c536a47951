package socket

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/lukakralj/GpioManager-Server/internal/secure"
)

// clientCrypto holds the client half of the hybrid handshake: an RSA
// keypair for receiving the login response and an AES session key for the
// bulk stream.
type clientCrypto struct {
	priv   *rsa.PrivateKey
	pubB64 string
	aesKey []byte
}

func newClientCrypto(t *testing.T) *clientCrypto {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating client keypair: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshalling client public key: %v", err)
	}
	aesKey := make([]byte, secure.SessionKeyLen)
	if _, err := rand.Read(aesKey); err != nil {
		t.Fatalf("generating session key: %v", err)
	}
	return &clientCrypto{
		priv:   priv,
		pubB64: base64.StdEncoding.EncodeToString(der),
		aesKey: aesKey,
	}
}

func (c *clientCrypto) decryptRSA(t *testing.T, ciphertextB64 string) []byte {
	t.Helper()
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		t.Fatalf("login response is not base64: %v", err)
	}
	plain, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, c.priv, ct, nil)
	if err != nil {
		t.Fatalf("decrypting login response: %v", err)
	}
	return plain
}

// secretBlob RSA-encrypts the login credentials with the server's public
// key. Only the secrets go inside the block; the client key rides as a
// plaintext field because one OAEP block cannot fit both.
func (c *clientCrypto) secretBlob(t *testing.T, serverKey string) string {
	t.Helper()
	secret, err := json.Marshal(map[string]any{
		"username": testUsername,
		"password": testPassword,
		"aesKey":   base64.StdEncoding.EncodeToString(c.aesKey),
	})
	if err != nil {
		t.Fatalf("marshalling login secrets: %v", err)
	}
	ct, err := secure.EncryptForPeer(serverKey, secret)
	if err != nil {
		t.Fatalf("encrypting login secrets: %v", err)
	}
	return ct
}

// login runs the full hybrid handshake on conn and returns the access
// token from the asymmetrically encrypted login response.
func (c *clientCrypto) login(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	send(t, conn, TypeLogin, map[string]any{
		"clientKey": c.pubB64,
		"secret":    c.secretBlob(t, fetchServerKey(t, conn)),
	})

	env := await(t, conn, TypeLogin+responseSuffix)
	plain := c.decryptRSA(t, stringBody(t, env))

	loginResp := map[string]any{}
	if err := json.Unmarshal(plain, &loginResp); err != nil {
		t.Fatalf("decoding decrypted login response: %v", err)
	}
	if loginResp["status"] != StatusOK {
		t.Fatalf("login failed: %v", loginResp)
	}
	token, _ := loginResp["accessToken"].(string)
	if token == "" {
		t.Fatal("no access token in decrypted response")
	}
	return token
}

// request sends an AES-encrypted request and decrypts the matching
// response with the session key.
func (c *clientCrypto) request(t *testing.T, conn *websocket.Conn, msgType string, body map[string]any) map[string]any {
	t.Helper()
	plain, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling %s request: %v", msgType, err)
	}
	ct, err := secure.SymmetricEncrypt(c.aesKey, plain)
	if err != nil {
		t.Fatalf("encrypting %s request: %v", msgType, err)
	}
	sendRawBody(t, conn, msgType, ct)

	env := await(t, conn, msgType+responseSuffix)
	respPlain, err := secure.SymmetricDecrypt(c.aesKey, stringBody(t, env))
	if err != nil {
		t.Fatalf("decrypting %s response: %v", msgType, err)
	}
	resp := map[string]any{}
	if err := json.Unmarshal(respPlain, &resp); err != nil {
		t.Fatalf("decoding %s response: %v", msgType, err)
	}
	return resp
}

func fetchServerKey(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	resp := request(t, conn, TypeServerKey, nil)
	serverKey, _ := resp["serverKey"].(string)
	if serverKey == "" {
		t.Fatal("no server key")
	}
	return serverKey
}

// stringBody decodes an envelope body that is a JSON string (ciphertext).
func stringBody(t *testing.T, env Envelope) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(env.Body, &s); err != nil {
		t.Fatalf("%s body is not a string: %v (raw: %s)", env.Type, err, env.Body)
	}
	return s
}

func TestHybridLoginHandshake(t *testing.T) {
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)
	cc := newClientCrypto(t)

	token := cc.login(t, conn)

	// Subsequent traffic runs over the AES session key.
	resp := cc.request(t, conn, TypeComponents, map[string]any{"accessToken": token})
	if resp["status"] != StatusOK {
		t.Fatalf("components over the session key failed: %v", resp)
	}
}

func TestHybridFullyEncryptedLoginBody(t *testing.T) {
	// Without a client key the credentials fit in one RSA block, so the
	// whole login body may arrive as a single ciphertext string.
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)
	cc := newClientCrypto(t)

	sendRawBody(t, conn, TypeLogin, cc.secretBlob(t, fetchServerKey(t, conn)))

	// No client key was supplied, so the response comes back plaintext.
	resp := bodyMap(t, await(t, conn, TypeLogin+responseSuffix))
	if resp["status"] != StatusOK {
		t.Fatalf("fully encrypted login failed: %v", resp)
	}
	token, _ := resp["accessToken"].(string)
	if token == "" {
		t.Fatal("no access token in login response")
	}

	resp = cc.request(t, conn, TypeComponents, map[string]any{"accessToken": token})
	if resp["status"] != StatusOK {
		t.Fatalf("components over the session key failed: %v", resp)
	}
}

func TestHybridBadLoginCiphertext(t *testing.T) {
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)

	sendRawBody(t, conn, TypeLogin, base64.StdEncoding.EncodeToString([]byte("garbage ciphertext")))
	resp := bodyMap(t, await(t, conn, TypeLogin+responseSuffix))
	assertErrCode(t, resp, CodeBadEncrypt)
}

func TestHybridBadLoginSecret(t *testing.T) {
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)
	cc := newClientCrypto(t)

	send(t, conn, TypeLogin, map[string]any{
		"clientKey": cc.pubB64,
		"secret":    base64.StdEncoding.EncodeToString([]byte("garbage ciphertext")),
	})
	resp := bodyMap(t, await(t, conn, TypeLogin+responseSuffix))
	assertErrCode(t, resp, CodeBadEncrypt)
}

func TestHybridEncryptedMessageWithoutSession(t *testing.T) {
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)

	// An AES payload on a connection with no established session key
	// cannot be decrypted.
	sendRawBody(t, conn, TypeComponents, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	resp := bodyMap(t, await(t, conn, TypeComponents+responseSuffix))
	assertErrCode(t, resp, CodeBadEncrypt)
}

func TestHybridReconnectRebindsSessionKey(t *testing.T) {
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)
	cc := newClientCrypto(t)

	token := cc.login(t, conn)
	conn.Close()

	conn2 := ts.dial(t)

	// The new connection carries no session key yet, so an encrypted
	// request cannot be decrypted.
	plain, err := json.Marshal(map[string]any{"accessToken": token})
	if err != nil {
		t.Fatalf("marshalling request: %v", err)
	}
	ct, err := secure.SymmetricEncrypt(cc.aesKey, plain)
	if err != nil {
		t.Fatalf("encrypting request: %v", err)
	}
	sendRawBody(t, conn2, TypeComponents, ct)
	resp := bodyMap(t, await(t, conn2, TypeComponents+responseSuffix))
	assertErrCode(t, resp, CodeBadEncrypt)

	// A plaintext authenticated request rebinds the session keys from the
	// token cache; its response already comes back AES-encrypted.
	send(t, conn2, TypeComponents, map[string]any{"accessToken": token})
	env := await(t, conn2, TypeComponents+responseSuffix)
	respPlain, err := secure.SymmetricDecrypt(cc.aesKey, stringBody(t, env))
	if err != nil {
		t.Fatalf("decrypting rebind response: %v", err)
	}
	rebindResp := map[string]any{}
	if err := json.Unmarshal(respPlain, &rebindResp); err != nil {
		t.Fatalf("decoding rebind response: %v", err)
	}
	if rebindResp["status"] != StatusOK {
		t.Fatalf("plaintext rebind request failed: %v", rebindResp)
	}

	// From here the encrypted stream works again.
	resp = cc.request(t, conn2, TypeComponents, map[string]any{"accessToken": token})
	if resp["status"] != StatusOK {
		t.Fatalf("components after rebind failed: %v", resp)
	}
}

func TestHybridAcceptsPlaintextBody(t *testing.T) {
	// A JSON object body is accepted even in hybrid mode, for clients on an
	// already-secure channel.
	ts := newTestServer(t, "hybrid")
	conn := ts.dial(t)

	resp := request(t, conn, TypeLogin, map[string]any{
		"username": testUsername,
		"password": testPassword,
	})
	if resp["status"] != StatusOK {
		t.Fatalf("plaintext login in hybrid mode failed: %v", resp)
	}
}

func TestOffModeRejectsEncryptedBody(t *testing.T) {
	ts := newTestServer(t, "off")
	conn := ts.dial(t)

	sendRawBody(t, conn, TypeLogin, "c29tZSBjaXBoZXJ0ZXh0")
	resp := bodyMap(t, await(t, conn, TypeLogin+responseSuffix))
	assertErrCode(t, resp, CodeInvalidFormat)
}
