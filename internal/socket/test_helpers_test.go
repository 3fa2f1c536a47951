package socket

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/components"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
	"github.com/lukakralj/GpioManager-Server/internal/secure"
)

const (
	testUsername = "alice"
	testPassword = "correct-horse-battery"
)

// RSA-4096 generation is slow, so all tests share one server keypair.
var (
	keyOnce sync.Once
	keyPair *secure.KeyPair
	keyErr  error
)

func testKeyPair(t *testing.T) *secure.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		keyPair, keyErr = secure.GenerateKeyPair()
	})
	if keyErr != nil {
		t.Fatalf("generate keypair: %v", keyErr)
	}
	return keyPair
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			salt TEXT NOT NULL,
			iterations INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE access_tokens (
			token TEXT PRIMARY KEY,
			username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			expires_at TEXT NOT NULL
		);
		CREATE TABLE components (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			physical_pin INTEGER NOT NULL UNIQUE,
			direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

// testServer is a fully wired socket server listening on an httptest
// listener, with one seeded user and the in-memory pin driver.
type testServer struct {
	srv    *Server
	http   *httptest.Server
	tokens *auth.TokenStore
	comps  *components.Registry
	driver *components.MemoryDriver
}

func newTestServer(t *testing.T, encryptionMode string) *testServer {
	t.Helper()

	db := testDB(t)
	logger := testLogger()

	users := auth.NewUserRepository(db)
	cred, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	user := &auth.User{
		Username:     testUsername,
		PasswordHash: cred.Hash,
		Salt:         cred.Salt,
		Iterations:   cred.Iterations,
	}
	if err := users.Create(t.Context(), user); err != nil {
		t.Fatalf("seeding test user: %v", err)
	}

	tokens := auth.NewTokenStore(auth.NewTokenRepository(db), logger, auth.StoreOptions{
		Validity: 10 * 24 * time.Hour,
	})
	t.Cleanup(tokens.Close)

	driver := components.NewMemoryDriver()
	comps := components.NewRegistry(components.NewSQLiteRepository(db), driver, 2*time.Second)

	srv, err := New(Deps{
		Config: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 16384,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 64,
		},
		Security: config.SecurityConfig{
			Encryption: config.EncryptionConfig{Mode: encryptionMode},
		},
		Logger:     logger,
		Tokens:     tokens,
		Users:      users,
		Components: comps,
		Keys:       testKeyPair(t),
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.buildRouter())
	t.Cleanup(httpSrv.Close)

	return &testServer{srv: srv, http: httpSrv, tokens: tokens, comps: comps, driver: driver}
}

// dial opens a WebSocket connection to the test server.
func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialling %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// send writes a request envelope with a JSON object body.
func send(t *testing.T, conn *websocket.Conn, msgType string, body map[string]any) {
	t.Helper()
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		raw = data
	}
	if err := conn.WriteJSON(Envelope{Type: msgType, Body: raw}); err != nil {
		t.Fatalf("sending %s: %v", msgType, err)
	}
}

// sendRawBody writes a request envelope whose body is a base64 string
// (encrypted payload).
func sendRawBody(t *testing.T, conn *websocket.Conn, msgType, ciphertext string) {
	t.Helper()
	raw, err := json.Marshal(ciphertext)
	if err != nil {
		t.Fatalf("marshalling ciphertext: %v", err)
	}
	if err := conn.WriteJSON(Envelope{Type: msgType, Body: json.RawMessage(raw)}); err != nil {
		t.Fatalf("sending %s: %v", msgType, err)
	}
}

// await reads envelopes until one of the wanted type arrives, skipping
// interleaved broadcasts. Fails the test after a timeout.
func await(t *testing.T, conn *websocket.Conn, wantType string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", wantType, err)
		}
		if env.Type == wantType {
			return env
		}
	}
}

// bodyMap decodes an envelope's plain JSON object body.
func bodyMap(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	body := map[string]any{}
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, &body); err != nil {
			t.Fatalf("decoding %s body: %v (raw: %s)", env.Type, err, env.Body)
		}
	}
	return body
}

// request sends and waits for the matching response, returning its body.
func request(t *testing.T, conn *websocket.Conn, msgType string, body map[string]any) map[string]any {
	t.Helper()
	send(t, conn, msgType, body)
	return bodyMap(t, await(t, conn, msgType+responseSuffix))
}

// login authenticates the seeded user and returns the access token.
func login(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	resp := request(t, conn, TypeLogin, map[string]any{
		"username": testUsername,
		"password": testPassword,
	})
	if resp["status"] != StatusOK {
		t.Fatalf("login failed: %v", resp)
	}
	token, _ := resp["accessToken"].(string)
	if token == "" {
		t.Fatal("login response carries no access token")
	}
	return token
}

func assertErrCode(t *testing.T, resp map[string]any, wantCode string) {
	t.Helper()
	if resp["status"] != StatusErr {
		t.Fatalf("status = %v, want %s (resp: %v)", resp["status"], StatusErr, resp)
	}
	if resp["err_code"] != wantCode {
		t.Fatalf("err_code = %v, want %s", resp["err_code"], wantCode)
	}
}
