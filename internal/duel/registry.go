package duel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/quizduel-backend/internal/apperror"
	"github.com/rocketscienceinc/quizduel-backend/internal/entity"
	"github.com/rocketscienceinc/quizduel-backend/internal/questions"
)

// SeatSpec is one candidate identity supplied by the matchmaking
// queue. The engine uses it verbatim and adds no fairness logic.
type SeatSpec struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	IsBot    bool   `json:"isBot,omitempty"`
}

// MatchGroup is the matchmaking queue's contract: a formed grouping
// ready to become a session.
type MatchGroup struct {
	Level         int             `json:"level"`
	QuestionCount int             `json:"questionCount,omitempty"`
	Seats         []SeatSpec      `json:"seats"`
	Exclude       []string        `json:"exclude,omitempty"`
	Stake         json.RawMessage `json:"stake,omitempty"`
}

// BotFactory builds a scripted responder bound to one seat of one
// session.
type BotFactory interface {
	Responder(playerID string, session *Session) Outbound
}

// RegistrySettings resolves the config block the registry needs.
type RegistrySettings struct {
	Session       Settings
	QuestionCount int
	EvictionGrace time.Duration
}

// Registry maps match ids to live sessions. Matches are independent,
// so a single short-lived lock over the map is all the cross-match
// synchronization there is.
type Registry struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	supplier questions.Supplier
	results  ResultWriter
	bots     BotFactory
	settings RegistrySettings

	mu       sync.RWMutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
}

func NewRegistry(
	logger *slog.Logger,
	clock clockwork.Clock,
	supplier questions.Supplier,
	results ResultWriter,
	bots BotFactory,
	settings RegistrySettings,
) *Registry {
	return &Registry{
		logger:   logger.With("component", "match-registry"),
		clock:    clock,
		supplier: supplier,
		results:  results,
		bots:     bots,
		settings: settings,

		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// CreateMatch turns a matchmaking group into a running session. An
// under-provisioned question pool aborts formation instead of starting
// a short match.
func (that *Registry) CreateMatch(ctx context.Context, group *MatchGroup) (*Session, error) {
	log := that.logger.With("method", "CreateMatch")

	if len(group.Seats) < that.settings.Session.MinPlayers {
		return nil, fmt.Errorf("%w: got %d seats", apperror.ErrInsufficientPlayers, len(group.Seats))
	}

	if len(group.Seats) > that.settings.Session.MaxPlayers {
		return nil, fmt.Errorf("%w: %d seats exceed the table size", apperror.ErrInvalidPayload, len(group.Seats))
	}

	seen := make(map[string]struct{}, len(group.Seats))
	for _, seat := range group.Seats {
		if seat.PlayerID == "" {
			return nil, fmt.Errorf("%w: seat without player id", apperror.ErrInvalidPayload)
		}
		if _, dup := seen[seat.PlayerID]; dup {
			return nil, fmt.Errorf("%w: duplicate player %s", apperror.ErrInvalidPayload, seat.PlayerID)
		}
		seen[seat.PlayerID] = struct{}{}
	}

	count := group.QuestionCount
	if count <= 0 {
		count = that.settings.QuestionCount
	}

	exclude := make(map[string]struct{}, len(group.Exclude))
	for _, id := range group.Exclude {
		exclude[id] = struct{}{}
	}

	drawn, err := that.supplier.Draw(group.Level, count, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to draw questions: %w", err)
	}

	match := entity.NewMatch(uuid.NewString(), group.Level, group.Stake)
	match.Questions = drawn
	for i, seat := range group.Seats {
		match.Players = append(match.Players, &entity.Player{
			ID:     seat.PlayerID,
			Name:   seat.Name,
			Seat:   i,
			IsBot:  seat.IsBot,
			Status: entity.StatusDisconnected, // until the identity attaches
		})
	}

	var session *Session
	session = NewSession(
		that.logger,
		match,
		that.clock,
		that.settings.Session,
		that.results,
		func(playerID string) Outbound { return that.bots.Responder(playerID, session) },
		that.scheduleEviction,
	)

	runCtx, cancel := context.WithCancel(ctx)

	that.mu.Lock()
	that.sessions[match.ID] = session
	that.cancels[match.ID] = cancel
	that.mu.Unlock()

	go session.Run(runCtx)

	// seats the queue already marked as bots join right away
	for _, seat := range group.Seats {
		if !seat.IsBot {
			continue
		}
		if _, err = session.Attach(ctx, seat.PlayerID, that.bots.Responder(seat.PlayerID, session)); err != nil {
			log.Error("failed to attach bot seat", "playerID", seat.PlayerID, "error", err)
		}
	}

	log.Info("match created", "matchID", match.ID, "level", group.Level, "seats", len(group.Seats), "questions", len(drawn))

	return session, nil
}

// Lookup resolves a match id for the gateway.
func (that *Registry) Lookup(matchID string) (*Session, error) {
	that.mu.RLock()
	session, ok := that.sessions[matchID]
	that.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrMatchNotFound, matchID)
	}

	return session, nil
}

// Abort stops a match administratively.
func (that *Registry) Abort(matchID, reason string) error {
	session, err := that.Lookup(matchID)
	if err != nil {
		return err
	}

	session.Abort(reason)

	return nil
}

// Count reports how many sessions are live, for the ops surface.
func (that *Registry) Count() int {
	that.mu.RLock()
	defer that.mu.RUnlock()
	return len(that.sessions)
}

// scheduleEviction removes a finished session once its terminal
// broadcast had a chance to flush.
func (that *Registry) scheduleEviction(matchID string) {
	that.clock.AfterFunc(that.settings.EvictionGrace, func() {
		that.evict(matchID)
	})
}

func (that *Registry) evict(matchID string) {
	that.mu.Lock()
	cancel, ok := that.cancels[matchID]
	delete(that.sessions, matchID)
	delete(that.cancels, matchID)
	that.mu.Unlock()

	if ok {
		cancel()
		that.logger.Info("session evicted", "matchID", matchID)
	}
}
