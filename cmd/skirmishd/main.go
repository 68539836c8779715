package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skirmish-net/skirmish/internal/config"
	"github.com/skirmish-net/skirmish/internal/gateway"
	"github.com/skirmish-net/skirmish/internal/rules"
	"github.com/skirmish-net/skirmish/internal/schema"
	"github.com/skirmish-net/skirmish/internal/shared"
	"github.com/skirmish-net/skirmish/internal/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "./server.config.json", "path to server config file")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded", zap.String("config_path", *configPath))

	gameRules := loadRules(cfg.Protocol.RulesPath, logger)

	// Informational only; a missing or broken schema file never stops startup.
	artifact := schema.Load(cfg.Protocol.SchemaPath, logger)
	validator := shared.NewValidator(artifact, logger)

	srv := gateway.NewServer(cfg, validator, gameRules, logger)

	if cfg.Database.Path != "" {
		store, err := storage.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
			os.Exit(1)
		}
		defer store.Close()
		srv.SetStorage(store)
		logger.Info("violation audit enabled", zap.String("path", cfg.Database.Path))
	}

	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go drain(ctx, srv.Hub(), logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
	cancel()

	if err := srv.Stop(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

// loadRules falls back to the built-in rules when the file is absent or
// invalid.
func loadRules(path string, logger *zap.Logger) *rules.Rules {
	r := rules.Defaults()
	if path != "" {
		loaded, err := rules.Load(path)
		if err != nil {
			logger.Warn("failed to load rules, using defaults", zap.String("path", path), zap.Error(err))
		} else {
			r = *loaded
		}
	}

	logger.Info("rules loaded",
		zap.Float64("max_radius", r.Movement.MaxRadius),
		zap.Float64("max_speed", r.Movement.MaxSpeed),
		zap.Int("base_damage", r.Combat.BaseDamage),
		zap.Float64("critical_multiplier", r.Combat.CriticalMultiplier),
	)
	if r.Movement.MaxRadius > shared.MaxMoveRadius {
		logger.Warn("rules max_radius exceeds the MOVE validator limit; advertising and enforcing the validator limit",
			zap.Float64("rules", r.Movement.MaxRadius),
			zap.Float64("validator", shared.MaxMoveRadius),
		)
	}
	if r.ProtocolVersion != shared.ProtocolVersion {
		logger.Warn("rules protocol_version differs from the wire protocol version",
			zap.String("rules", shared.FormatProtocolVersion(r.ProtocolVersion)),
			zap.String("wire", shared.FormatProtocolVersion(shared.ProtocolVersion)),
		)
	}
	return &r
}

// drain consumes hub output until gameplay handlers are attached.
func drain(ctx context.Context, hub *gateway.Hub, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-hub.Inbound():
			logger.Debug("inbound envelope",
				zap.String("peer_id", msg.PeerID),
				zap.String("type", msg.Envelope.Type().String()),
				zap.Int64("seq", msg.Envelope.Seq()),
				zap.Duration("queued", time.Since(msg.ReceivedAt)),
			)
		case ev := <-hub.Events():
			logger.Debug("hub event", zap.String("type", ev.Type), zap.String("peer_id", ev.PeerID))
		}
	}
}
