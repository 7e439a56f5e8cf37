package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quizring/quizring/internal/config"
	"github.com/quizring/quizring/internal/handlers"
	"github.com/quizring/quizring/internal/middleware"
	"github.com/quizring/quizring/internal/quiz"
	"github.com/quizring/quizring/internal/replication"
	"github.com/quizring/quizring/internal/session"
)

func main() {
	verbose := flag.Bool("v", false, "verbose logging")
	joinLink := flag.String("join", "", "join a room from a share link (implies the link's role)")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := config.FromEnv()

	role := session.Role(cfg.Role)
	roomID := cfg.Room
	if *joinLink != "" {
		var err error
		roomID, role, err = handlers.ParseShareLink(*joinLink)
		if err != nil {
			logger.Fatalf("invalid share link: %v", err)
		}
	}

	var game *quiz.Game
	if role == session.RoleOwner {
		if roomID == "" {
			roomID = session.NewRoomID()
		}
		game = quiz.NewGame(loadBank(cfg.BankPath, logger), cfg.Seconds, clockwork.NewRealClock(), logger)
	} else if roomID == "" {
		logger.Fatal("player session requires a room (set QUIZRING_ROOM or use -join)")
	}

	// Transports. The local bus connects co-located sessions; the storage
	// slot and network channel reach other processes. Either remote leg may
	// be absent and replication degrades to whatever remains.
	bus := replication.NewLocalBus()
	locals := []replication.Transport{bus.Open()}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("Postgres unavailable; storage signal disabled")
		} else {
			slot, err := replication.NewStorageSlot(context.Background(), pool, logger)
			if err != nil {
				logger.WithError(err).Warn("Storage slot setup failed; storage signal disabled")
			} else {
				locals = append(locals, slot)
			}
		}
	}

	var network replication.Transport
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable; network join will keep retrying")
		}
		cancel()
		network = replication.NewChannel(rdb, roomID, logger)
	}

	sess, err := session.New(session.Config{
		Role:    role,
		RoomID:  roomID,
		Locals:  locals,
		Network: network,
		Game:    game,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatalf("session setup: %v", err)
	}

	srv := handlers.NewServer(sess, cfg.BaseURL, logger)

	if err := sess.Open(context.Background()); err != nil {
		logger.Fatalf("session open: %v", err)
	}

	if role == session.RoleOwner {
		logger.Infof("Share link: %s", handlers.ShareLink(cfg.BaseURL, roomID, session.RolePlayer))
	}

	server := &http.Server{
		Handler:     middleware.LogMiddleware(logger)(srv.Routes()),
		ReadTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("Listening on %s (room %s, role %s)", l.Addr(), roomID, role)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sess.Close()
	if pool != nil {
		pool.Close()
	}
}

// loadBank reads and validates the question bank. Ingestion failures are not
// fatal: the session comes up with an empty board and a notice, usable in a
// degraded state.
func loadBank(path string, logger *logrus.Logger) []quiz.QuizItem {
	if path == "" {
		logger.Warn("No question bank configured (QUIZRING_BANK); starting with an empty board")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).Warn("Failed to read question bank; starting with an empty board")
		return nil
	}
	items, err := quiz.ParseBank(data, logger)
	if err != nil {
		logger.WithError(err).Warn("Question bank invalid; starting with an empty board")
		return nil
	}
	return items
}
