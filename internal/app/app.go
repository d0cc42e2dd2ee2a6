package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"quickstrike/server/internal/combat"
	"quickstrike/server/internal/config"
	"quickstrike/server/internal/history"
	"quickstrike/server/internal/match"
	servernet "quickstrike/server/internal/net"
	"quickstrike/server/internal/net/intake"
	"quickstrike/server/internal/net/ws"
	"quickstrike/server/internal/observability"
	"quickstrike/server/internal/replication"
	"quickstrike/server/internal/sim"
	"quickstrike/server/internal/telemetry"
	"quickstrike/server/internal/world"
	"quickstrike/server/logging"
	loggingSinks "quickstrike/server/logging/sinks"
	"quickstrike/server/weapons/catalog"
)

// Config carries the process-level options resolved before the config file
// is read. Flags land here; everything else lives in the TOML file and the
// QS_* environment overrides.
type Config struct {
	ConfigPath string
	Addr       string
	ClientDir  string
	Logger     telemetry.Logger
}

// Run assembles the full server and blocks until ctx cancels or serving
// fails. Shutdown drains the HTTP listener first, then the tick loop and the
// logging router unwind through defers.
func Run(ctx context.Context, opts Config) error {
	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	clock := logging.ClockFunc(time.Now)
	metrics := logging.NewMetrics()

	logCfg := logging.DefaultConfig()
	if len(cfg.Logging.Sinks) > 0 {
		logCfg.EnabledSinks = cfg.Logging.Sinks
	}
	if cfg.Logging.BufferSize > 0 {
		logCfg.BufferSize = cfg.Logging.BufferSize
	}
	logCfg.MinimumSeverity = logging.ParseSeverity(cfg.Logging.MinimumSeverity)
	logCfg.Console.UseColor = cfg.Logging.ConsoleColor
	logCfg.JSON.FilePath = cfg.Logging.JSONPath

	named := make([]logging.NamedSink, 0, 2)
	if logCfg.HasSink("console") {
		named = append(named, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logCfg.Console),
		})
	}
	var jsonFile *os.File
	if logCfg.HasSink("json") && logCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log file: %w", err)
		}
		jsonFile = file
		named = append(named, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(clock, logCfg, metrics, named)
	if err != nil {
		if jsonFile != nil {
			jsonFile.Close()
		}
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("close logging router: %v", cerr)
		}
		if jsonFile != nil {
			jsonFile.Close()
		}
	}()

	weapons, err := catalog.Load(cfg.Weapons.CatalogPath)
	if err != nil {
		return fmt.Errorf("load weapon catalog: %w", err)
	}
	telemetryLogger.Printf("weapon catalog %s (%d weapons)", weapons.Fingerprint(), len(weapons.Weapons()))

	wrapped := telemetry.WrapMetrics(metrics)
	track := history.NewBuffer(
		time.Duration(cfg.Combat.HistoryWindowMillis)*time.Millisecond,
		cfg.Combat.HistoryCapacity,
		wrapped,
	)

	gameWorld, err := world.New(world.Config{
		Seed:            cfg.Arena.Seed,
		ArenaExtent:     cfg.Arena.Extent,
		DropProbability: cfg.Combat.EnemyDropProbability,
		SampleInterval:  time.Duration(cfg.Combat.SampleIntervalMillis) * time.Millisecond,
	}, world.Deps{
		Metrics: wrapped,
		History: track,
		Catalog: weapons,
	})
	if err != nil {
		return fmt.Errorf("construct world: %w", err)
	}

	coordinator := match.NewCoordinator(match.Config{
		Countdown:       time.Duration(cfg.Match.CountdownSeconds) * time.Second,
		Duration:        time.Duration(cfg.Match.DurationSeconds) * time.Second,
		TargetScore:     cfg.Match.TargetScore,
		KillBonus:       cfg.Match.KillBonus,
		MinReadyPlayers: cfg.Match.MinReadyPlayers,
	}, router, wrapped)

	validator := combat.NewValidator(combat.Config{
		LenientMargin: cfg.Combat.LenientMargin,
		MaxRewind:     time.Duration(cfg.Combat.MaxRewindMillis) * time.Millisecond,
	}, combat.Deps{
		World:     gameWorld,
		History:   track,
		Catalog:   weapons,
		Publisher: router,
		Metrics:   wrapped,
	})

	gateway := ws.NewGateway(telemetryLogger, wrapped)

	engine, err := sim.NewEngine(sim.Config{
		TickRate:               cfg.Simulation.TickRate,
		SnapshotIntervalTicks:  cfg.Replication.SnapshotIntervalTicks,
		MatchSyncIntervalTicks: cfg.Replication.MatchSyncIntervalTicks,
		HeartbeatTimeout:       cfg.Network.HeartbeatTimeout(),
		RespawnDelay:           cfg.Match.RespawnDelay(),
	}, sim.Deps{
		World:      gameWorld,
		Match:      coordinator,
		Validator:  validator,
		Replicator: replication.NewReplicator(telemetryLogger, wrapped),
		Catalog:    weapons,
		Sender:     gateway,
		Closer:     gateway,
		Publisher:  router,
		Logger:     telemetryLogger,
		Metrics:    wrapped,
	})
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	gameWorld.SeedArena(cfg.Arena.Enemies, cfg.Arena.StaticTargets, cfg.Arena.MovingTargets, clock.Now())

	loop := sim.NewLoop(engine, sim.LoopConfig{
		TickRate:        cfg.Simulation.TickRate,
		CatchUpMaxTicks: cfg.Simulation.MaxCatchUpTicks,
		CommandCapacity: cfg.Network.CommandQueueLimit,
		PerActorLimit:   cfg.Network.PerActorQueueLimit,
	}, clock)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go loop.Run(loopCtx)

	stager := intake.NewStager(loop, gateway)
	socket := ws.NewHandler(gateway, engine, stager, loop, ws.HandlerConfig{
		Logger:         telemetryLogger,
		Clock:          clock,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	handler := servernet.NewHTTPHandler(engine, socket, weapons, metrics, servernet.HTTPHandlerConfig{
		ClientDir:         opts.ClientDir,
		Logger:            telemetryLogger,
		Clock:             clock,
		TickRate:          cfg.Simulation.TickRate,
		HeartbeatInterval: cfg.Network.HeartbeatInterval(),
		Observability:     observability.Config{EnablePprofTrace: cfg.Server.EnablePprofTrace},
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	telemetryLogger.Printf("server listening on %s (tick rate %d)", srv.Addr, cfg.Simulation.TickRate)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
