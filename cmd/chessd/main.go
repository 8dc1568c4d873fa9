package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/lehau007/NetworkProgramming/internal/ai"
	"github.com/lehau007/NetworkProgramming/internal/config"
	"github.com/lehau007/NetworkProgramming/internal/data"
	"github.com/lehau007/NetworkProgramming/internal/handler"
	"github.com/lehau007/NetworkProgramming/internal/match"
	gonet "github.com/lehau007/NetworkProgramming/internal/net"
	"github.com/lehau007/NetworkProgramming/internal/persist"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
	"github.com/lehau007/NetworkProgramming/internal/scripting"
	"github.com/lehau007/NetworkProgramming/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("CHESSD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting", zap.String("server", cfg.Server.Name))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("database ready", zap.String("name", cfg.Database.Name))

	userRepo := persist.NewUserRepo(db)
	gameRepo := persist.NewGameRepo(db)
	sessionRepo := persist.NewSessionRepo(db)

	sessions := session.NewRegistry(sessionRepo, cfg.Session.Timeout.Std(), log)
	matches := match.NewRegistry(gameRepo, userRepo, log)

	// Adversary tuning: Lua evaluation policy plus the YAML opening
	// book, both optional on disk.
	evalEngine, err := scripting.NewEngine(cfg.AI.ScriptPath, log)
	if err != nil {
		return fmt.Errorf("eval script: %w", err)
	}
	defer evalEngine.Close()
	book, err := data.LoadOpeningBook(cfg.AI.BookPath)
	if err != nil {
		return fmt.Errorf("opening book: %w", err)
	}
	matches.SetAdversaryPolicy(evalEngine.Policy(), book)
	log.Info("adversary ready",
		zap.Int("default_depth", cfg.AI.DefaultDepth),
		zap.Int("opening_lines", book.Count()),
	)

	// Broadcast seam: user id to live socket. The adversary has no
	// socket; its id is skipped.
	matches.SetBroadcaster(func(userID int64, msg protocol.M) {
		if userID == ai.UserID {
			return
		}
		sock, ok := sessions.SocketByUser(userID)
		if !ok {
			return
		}
		if err := sock.SendText(msg.Encode()); err != nil {
			log.Debug("broadcast dropped", zap.Int64("user_id", userID), zap.Error(err))
		}
	})

	registry := protocol.NewRegistry(log)
	handler.RegisterAll(registry, &handler.Deps{
		Sessions: sessions,
		Matches:  matches,
		Users:    userRepo,
		Games:    gameRepo,
		AIDepth:  cfg.AI.DefaultDepth,
		Log:      log,
	})

	server, err := gonet.NewServer(cfg.Network, registry, sessions, matches, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("listening", zap.String("addr", server.Addr().String()))

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(server.AcceptLoop)
	g.Go(func() error {
		return sessions.RunSweeper(gctx, cfg.Session.SweepInterval.Std())
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			server.Shutdown()
			stop()
		case <-gctx.Done():
		}
		return nil
	})

	return g.Wait()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
