package socket

import (
	"context"
	"errors"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/components"
)

// registerEndpoints wires the built-in message types into the registry.
func (s *Server) registerEndpoints() error {
	builtins := []Endpoint{
		{Type: TypeServerKey, NoAuth: true, Handle: s.handleServerKey},
		{Type: TypeLogin, NoAuth: true, Required: []string{"username", "password"}, Handle: s.handleLogin},
		{Type: TypeLogout, Handle: s.handleLogout},
		{Type: TypeRefreshToken, Handle: s.handleRefreshToken},
		{Type: TypeJoinComponentsRoom, Handle: s.handleJoinComponentsRoom},
		{Type: TypeLeaveComponentsRoom, NoAuth: true, Handle: s.handleLeaveComponentsRoom},
		{Type: TypeComponents, Handle: s.handleComponents},
		{Type: TypeToggleComponent, Required: []string{"id", "status"}, Handle: s.handleToggleComponent},
		{Type: TypeUpdateComponent, Required: []string{"id", "data"}, Handle: s.handleUpdateComponent},
		{Type: TypeAddComponent, Required: []string{"data"}, Handle: s.handleAddComponent},
		{Type: TypeRemoveComponent, Required: []string{"id"}, Handle: s.handleRemoveComponent},
	}
	for _, ep := range builtins {
		if err := s.endpoints.Register(ep); err != nil {
			return err
		}
	}
	return nil
}

// handleServerKey returns the server's public key. The response is always
// plaintext, as clients call this before any key material exists.
func (s *Server) handleServerKey(_ context.Context, _ *Request) (map[string]any, error) {
	return map[string]any{"serverKey": s.keys.PublicKey()}, nil
}

// handleLogin verifies credentials and issues a session token. The client
// may supply its own RSA public key ("clientKey", base64 SPKI) to receive
// the login response asymmetrically encrypted, and an AES session key
// ("aesKey", base64, 32 bytes) for the bulk stream. In hybrid mode the
// secret fields arrive inside an RSA-encrypted blob that the pipeline has
// already unwrapped into the field map by the time this runs.
func (s *Server) handleLogin(ctx context.Context, req *Request) (map[string]any, error) {
	username := req.String("username")
	password := req.String("password")

	keys := auth.SessionKeys{ClientKey: req.String("clientKey")}
	if encoded := req.String("aesKey"); encoded != "" {
		key, err := decodeSessionKey(encoded)
		if err != nil {
			return nil, err
		}
		keys.AESKey = key
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Error("login lookup failed", "username", username, "error", err)
		}
		// Unknown user and wrong password are indistinguishable on the wire.
		return nil, NewError(CodeBadAuth)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash, user.Salt, user.Iterations)
	if err != nil || !ok {
		if err != nil {
			s.logger.Error("credential record verification failed", "username", username, "error", err)
		}
		return nil, NewError(CodeBadAuth)
	}

	token, err := s.tokens.Issue(user.Username, keys)
	if err != nil {
		return nil, err
	}
	req.Client.bindSession(token, keys)

	s.logger.Info("user logged in", "username", user.Username, "client", req.Client.id)
	return map[string]any{"accessToken": token}, nil
}

// handleRefreshToken keeps an idle session alive. Token verification in
// the pipeline already slid the expiry forward, so there is nothing left
// to do but acknowledge.
func (s *Server) handleRefreshToken(_ context.Context, _ *Request) (map[string]any, error) {
	return nil, nil
}

// handleLogout revokes the session token and detaches it from the
// connection.
func (s *Server) handleLogout(_ context.Context, req *Request) (map[string]any, error) {
	s.tokens.Revoke(req.Token)
	req.Client.clearSession()
	s.hub.Leave(req.Client, ComponentsRoom)
	s.logger.Info("user logged out", "username", req.Identity, "client", req.Client.id)
	return nil, nil
}

func (s *Server) handleJoinComponentsRoom(_ context.Context, req *Request) (map[string]any, error) {
	s.hub.Join(req.Client, ComponentsRoom)
	s.logger.Debug("client joined components room", "client", req.Client.id)
	return nil, nil
}

// handleLeaveComponentsRoom is deliberately unauthenticated: leaving is a
// no-op for non-members and revealing nothing, so a token check would only
// stop clients from cleaning up after their session expired.
func (s *Server) handleLeaveComponentsRoom(_ context.Context, req *Request) (map[string]any, error) {
	s.hub.Leave(req.Client, ComponentsRoom)
	s.logger.Debug("client left components room", "client", req.Client.id)
	return nil, nil
}

func (s *Server) handleComponents(ctx context.Context, _ *Request) (map[string]any, error) {
	return map[string]any{"components": s.components.States(ctx)}, nil
}

func (s *Server) handleToggleComponent(ctx context.Context, req *Request) (map[string]any, error) {
	err := s.components.Toggle(ctx, req.String("id"), req.String("status"))
	s.BroadcastChange()
	if err != nil {
		return nil, componentError(err)
	}
	return nil, nil
}

func (s *Server) handleUpdateComponent(ctx context.Context, req *Request) (map[string]any, error) {
	data, ok := req.Fields["data"].(map[string]any)
	if !ok {
		return nil, NewError(CodeInvalidFormat)
	}

	upd := components.Update{
		Name:        stringField(data, "name"),
		Description: stringField(data, "description"),
		PhysicalPin: intField(data, "physicalPin"),
		Direction:   components.Direction(stringField(data, "direction")),
	}

	err := s.components.ApplyUpdate(ctx, req.String("id"), upd)
	s.BroadcastChange()
	if err != nil {
		return nil, componentError(err)
	}
	return nil, nil
}

func (s *Server) handleAddComponent(ctx context.Context, req *Request) (map[string]any, error) {
	data, ok := req.Fields["data"].(map[string]any)
	if !ok {
		return nil, NewError(CodeInvalidFormat)
	}

	comp := &components.Component{
		Name:        stringField(data, "name"),
		Description: stringField(data, "description"),
		PhysicalPin: intField(data, "physicalPin"),
		Direction:   components.Direction(stringField(data, "direction")),
	}

	id, err := s.components.Add(ctx, comp)
	if err != nil {
		return nil, componentError(err)
	}
	s.BroadcastChange()
	return map[string]any{"id": id}, nil
}

func (s *Server) handleRemoveComponent(ctx context.Context, req *Request) (map[string]any, error) {
	err := s.components.Remove(ctx, req.String("id"))
	s.BroadcastChange()
	if err != nil {
		return nil, componentError(err)
	}
	return nil, nil
}

// componentError maps registry failures onto the wire taxonomy: requests
// that name a bad component, pin, or value are the client's fault
// (INVALID_FORMAT); hardware and persistence failures are the server's
// (SERVER_ERR).
func componentError(err error) error {
	switch {
	case errors.Is(err, components.ErrComponentNotFound),
		errors.Is(err, components.ErrInvalidToggle),
		errors.Is(err, components.ErrInvalidComponent),
		errors.Is(err, components.ErrInvalidDirection),
		errors.Is(err, components.ErrPinInUse):
		return NewError(CodeInvalidFormat)
	default:
		return err
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// intField reads a numeric field. JSON numbers decode as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
