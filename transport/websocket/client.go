package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
	"github.com/rocketscienceinc/quizduel-backend/internal/service"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 32
)

// client is one authenticated connection. It implements duel.Outbound
// through a buffered send channel: a seat that cannot keep up loses
// frames instead of stalling the session's round loop.
type client struct {
	logger   *slog.Logger
	identity *service.Identity
	conn     *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	session *duel.Session
}

func newClient(logger *slog.Logger, conn *websocket.Conn, identity *service.Identity) *client {
	return &client{
		logger:   logger.With("playerID", identity.PlayerID),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (that *client) setSession(session *duel.Session) {
	that.mu.Lock()
	that.session = session
	that.mu.Unlock()
}

func (that *client) currentSession() *duel.Session {
	that.mu.Lock()
	defer that.mu.Unlock()
	return that.session
}

// Deliver implements duel.Outbound.
func (that *client) Deliver(event duel.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		that.logger.Error("failed to marshal event", "action", event.Action(), "error", err)
		return
	}

	raw, err := json.Marshal(Message{Action: event.Action(), Payload: payload})
	if err != nil {
		that.logger.Error("failed to marshal message", "action", event.Action(), "error", err)
		return
	}

	select {
	case that.send <- raw:
	case <-that.done:
	default:
		that.logger.Warn("send buffer full, dropping frame", "action", event.Action())
	}
}

func (that *client) sendMessage(action string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		that.logger.Error("failed to marshal payload", "action", action, "error", err)
		return
	}

	message, err := json.Marshal(Message{Action: action, Payload: raw})
	if err != nil {
		that.logger.Error("failed to marshal message", "action", action, "error", err)
		return
	}

	select {
	case that.send <- message:
	case <-that.done:
	default:
		that.logger.Warn("send buffer full, dropping frame", "action", action)
	}
}

func (that *client) close() {
	that.once.Do(func() {
		close(that.done)
		_ = that.conn.Close()
	})
}

// writePump owns all writes to the connection, including pings.
func (that *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		that.close()
	}()

	for {
		select {
		case <-that.done:
			return
		case raw := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := that.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				that.logger.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
