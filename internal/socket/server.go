package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lukakralj/GpioManager-Server/internal/auth"
	"github.com/lukakralj/GpioManager-Server/internal/components"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/config"
	"github.com/lukakralj/GpioManager-Server/internal/infrastructure/logging"
	"github.com/lukakralj/GpioManager-Server/internal/secure"
)

const gracefulShutdownTimeout = 10 * time.Second

// EventPublisher mirrors component change notifications onto an external
// channel, e.g. an MQTT topic. Optional.
type EventPublisher interface {
	PublishComponentChange()
}

// Deps holds the dependencies required by the socket server.
type Deps struct {
	Config     config.ServerConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Tokens     *auth.TokenStore
	Users      auth.UserRepository
	Components *components.Registry
	Keys       *secure.KeyPair
	Publisher  EventPublisher // optional
}

// Server owns the HTTP listener, the WebSocket hub and the endpoint
// registry. Create with New(), start with Start(), stop with Close().
type Server struct {
	cfg            config.ServerConfig
	wsCfg          config.WebSocketConfig
	encryptionMode string
	logger         *logging.Logger

	tokens     *auth.TokenStore
	users      auth.UserRepository
	components *components.Registry
	keys       *secure.KeyPair
	publisher  EventPublisher

	endpoints *Registry
	hub       *Hub
	server    *http.Server
	cancel    context.CancelFunc
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Clients connect through the tunnel under arbitrary origins.
		return true
	},
}

// New creates a socket server and registers the built-in endpoints.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Components == nil {
		return nil, fmt.Errorf("component registry is required")
	}
	if deps.Keys == nil {
		return nil, fmt.Errorf("server keypair is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		encryptionMode: deps.Security.Encryption.Mode,
		logger:         deps.Logger,
		tokens:         deps.Tokens,
		users:          deps.Users,
		components:     deps.Components,
		keys:           deps.Keys,
		publisher:      deps.Publisher,
		endpoints:      NewRegistry(),
	}
	s.hub = NewHub(deps.Logger)

	if err := s.registerEndpoints(); err != nil {
		return nil, err
	}
	return s, nil
}

// RegisterEndpoint exposes the endpoint registry so collaborators can add
// message types beyond the built-ins.
func (s *Server) RegisterEndpoint(ep Endpoint) error {
	return s.endpoints.Register(ep)
}

// Start begins listening. The listener runs in a background goroutine; use
// Close() to stop it.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("socket server listening", "address", s.server.Addr, "encryption", s.encryptionMode)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("socket server error", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("socket server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down socket server: %w", err)
	}
	return nil
}

// BroadcastChange tells every client in the components room that shared
// component state changed, and mirrors the event to the publisher if one is
// configured. Callers do not wait for delivery.
func (s *Server) BroadcastChange() {
	s.hub.Notify(ComponentsRoom, TypeComponentsChange)
	if s.publisher != nil {
		s.publisher.PublishComponentChange()
	}
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Get("/health", s.handleHealth)
	r.Get(s.wsCfg.Path, s.handleWebSocket)
	return r
}

// recoveryMiddleware converts an HTTP handler panic into a 500 instead of
// killing the process.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("http handler panicked", "path", r.URL.Path, "panic", rec)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort health body
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebSocket upgrades the connection and starts the client pumps.
// Authentication happens per message inside the pipeline, not at upgrade
// time, so the upgrade itself is open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn, s.wsCfg.SendBufferSize)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s)
}
