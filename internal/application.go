package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/quizduel-backend/internal/config"
	"github.com/rocketscienceinc/quizduel-backend/internal/duel"
	"github.com/rocketscienceinc/quizduel-backend/internal/questions"
	"github.com/rocketscienceinc/quizduel-backend/internal/repository"
	"github.com/rocketscienceinc/quizduel-backend/internal/repository/storage"
	"github.com/rocketscienceinc/quizduel-backend/internal/service"
	"github.com/rocketscienceinc/quizduel-backend/transport/rest"
	"github.com/rocketscienceinc/quizduel-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisClient, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisClient.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	clock := clockwork.NewRealClock()
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint: gosec // game shuffling, not crypto

	pool, err := questions.LoadPool(conf.QuestionsFile, rng)
	if err != nil {
		return fmt.Errorf("could not load question pool: %w", err)
	}

	resultRepo := repository.NewResultRepository(redisClient)
	resultService := service.NewResultService(logger, resultRepo)
	authService := service.NewAuthService(conf.JWTSecretKey)
	botService := service.NewBotService(logger, clock, service.BotPolicy{
		MinDelay: conf.Duel.BotMinDelay(),
		MaxDelay: conf.Duel.BotMaxDelay(),
		Accuracy: conf.Duel.BotAccuracy,
	}, rng)

	matchRegistry := duel.NewRegistry(logger, clock, pool, resultService, botService, duel.RegistrySettings{
		Session: duel.Settings{
			FormingGrace:         conf.Duel.FormingGrace(),
			ReconnectGraceRounds: conf.Duel.ReconnectGraceRounds,
			MinPlayers:           conf.Duel.MinPlayers,
			MaxPlayers:           conf.Duel.MaxPlayers,
		},
		QuestionCount: conf.Duel.QuestionsPerMatch,
		EvictionGrace: conf.Duel.EvictionGrace(),
	})

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, matchRegistry, resultRepo)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, matchRegistry, authService)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
