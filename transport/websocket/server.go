package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
	"github.com/rocketscienceinc/quizduel-backend/internal/service"
)

type registry interface {
	Lookup(matchID string) (*duel.Session, error)
}

type authService interface {
	VerifyToken(token string) (*service.Identity, error)
}

// Server is the connection gateway: it authenticates callers, attaches
// them to their match session and relays frames both ways.
type Server struct {
	logger   *slog.Logger
	registry registry
	auth     authService
	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, caller *client, message *Message) error
}

func New(logger *slog.Logger, registry registry, auth authService) *Server {
	server := &Server{
		logger:   logger.With("component", "ws-gateway"),
		registry: registry,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		handlers: make(map[string]func(context.Context, *client, *Message) error),
	}

	server.handlers["match.join"] = server.handleJoin
	server.handlers["match.answer"] = server.handleAnswer

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveConnection authenticates the caller and upgrades the
// connection. No player session exists until the identity checks out.
func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	identity, err := that.auth.VerifyToken(bearerToken(r))
	if err != nil {
		log.Warn("rejected connection", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	caller := newClient(that.logger, conn, identity)
	go caller.writePump()

	log.Info("connection established", "playerID", identity.PlayerID)

	that.readLoop(ctx, caller)
}

// readLoop processes inbound frames until the connection dies, then
// detaches the seat so the reconnection grace window starts ticking.
func (that *Server) readLoop(ctx context.Context, caller *client) {
	log := that.logger.With("method", "readLoop", "playerID", caller.identity.PlayerID)

	defer func() {
		if session := caller.currentSession(); session != nil {
			session.Detach(caller.identity.PlayerID, caller)
		}
		caller.close()
		log.Info("connection closed")
	}()

	caller.conn.SetReadLimit(maxMessageSize)
	_ = caller.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	caller.conn.SetPongHandler(func(string) error {
		return caller.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := caller.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read failed", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			that.sendError(caller, "", "invalid_payload", "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			that.sendError(caller, message.Action, "invalid_payload", "unknown action")
			continue
		}

		if err = handler(ctx, caller, &message); err != nil {
			that.sendError(caller, message.Action, errorCode(err), err.Error())
		}
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}

// sendError goes to the offending connection only; other seats never
// see it.
func (that *Server) sendError(caller *client, action, code, message string) {
	if action == "" {
		action = "error"
	}
	caller.sendMessage(action, ErrorPayload{Code: code, Error: message})
}
