package socket

import (
	"context"
	"fmt"
	"sync"
)

// Request is the parsed, authenticated form of an inbound message handed to
// a handler. Fields holds the decrypted body; Identity is set after token
// verification and is empty for NoAuth endpoints.
type Request struct {
	Type     string
	Fields   map[string]any
	Identity string
	Token    string
	Client   *Client
}

// String returns the string value of a body field, or "" when absent or not
// a string.
func (r *Request) String(key string) string {
	s, _ := r.Fields[key].(string)
	return s
}

// HandlerFunc processes a request and returns the type-specific fields of
// the OK response. Returning a *Error selects the err_code sent back; any
// other error (or a panic) becomes SERVER_ERR.
type HandlerFunc func(ctx context.Context, req *Request) (map[string]any, error)

// Endpoint binds a message type to its handler and validation rules.
type Endpoint struct {
	// Type is the wire message type, e.g. "toggleComponent".
	Type string

	// Required lists body fields that must be present. Checked after token
	// presence but before token verification.
	Required []string

	// NoAuth marks endpoints reachable without a session token, such as the
	// key exchange and login.
	NoAuth bool

	Handle HandlerFunc
}

// Registry maps message types to endpoints. Registration happens during
// server construction; lookups are concurrent afterwards.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register adds an endpoint. Registering a duplicate or handler-less
// endpoint is a programming error and fails loudly.
func (r *Registry) Register(ep Endpoint) error {
	if ep.Type == "" {
		return fmt.Errorf("socket: endpoint type is required")
	}
	if ep.Handle == nil {
		return fmt.Errorf("socket: endpoint %q has no handler", ep.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[ep.Type]; exists {
		return fmt.Errorf("socket: endpoint %q already registered", ep.Type)
	}
	r.endpoints[ep.Type] = ep
	return nil
}

// Lookup returns the endpoint for a message type.
func (r *Registry) Lookup(msgType string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[msgType]
	return ep, ok
}
