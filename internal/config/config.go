package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config aggregates every tunable the server reads at startup. Values load in
// three layers: compiled defaults, then an optional TOML file, then QS_*
// environment overrides.
type Config struct {
	Server      Server
	Simulation  Simulation
	Match       Match
	Combat      Combat
	Replication Replication
	Network     Network
	Arena       Arena
	Logging     Logging
	Weapons     Weapons
}

type Server struct {
	Addr             string
	AllowedOrigins   []string
	EnablePprofTrace bool
}

type Simulation struct {
	TickRate        int
	MaxCatchUpTicks int
}

type Match struct {
	CountdownSeconds   int
	DurationSeconds    int
	TargetScore        int
	KillBonus          int
	RespawnDelayMillis int
	MinReadyPlayers    int
}

type Combat struct {
	HistoryWindowMillis  int
	HistoryCapacity      int
	SampleIntervalMillis int
	LenientMargin        float64
	MaxRewindMillis      int
	EnemyDropProbability float64
}

type Replication struct {
	SnapshotIntervalTicks  int
	MatchSyncIntervalTicks int
}

type Network struct {
	HeartbeatIntervalMillis int
	HeartbeatTimeoutMillis  int
	CommandQueueLimit       int
	PerActorQueueLimit      int
}

// Arena shapes the world seeded at boot and after every match restart.
type Arena struct {
	Seed          string
	Extent        float64
	Enemies       int
	StaticTargets int
	MovingTargets int
}

type Logging struct {
	Sinks           []string
	MinimumSeverity string
	JSONPath        string
	BufferSize      int
	ConsoleColor    bool
}

type Weapons struct {
	CatalogPath string
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":8080",
		},
		Simulation: Simulation{
			TickRate:        30,
			MaxCatchUpTicks: 5,
		},
		Match: Match{
			CountdownSeconds:   5,
			DurationSeconds:    180,
			TargetScore:        500,
			KillBonus:          50,
			RespawnDelayMillis: 5000,
			MinReadyPlayers:    1,
		},
		Combat: Combat{
			HistoryWindowMillis:  1000,
			HistoryCapacity:      20,
			SampleIntervalMillis: 50,
			LenientMargin:        0.8,
			MaxRewindMillis:      1000,
			EnemyDropProbability: 0.35,
		},
		Replication: Replication{
			SnapshotIntervalTicks:  60,
			MatchSyncIntervalTicks: 30,
		},
		Network: Network{
			HeartbeatIntervalMillis: 2000,
			HeartbeatTimeoutMillis:  10000,
			CommandQueueLimit:       1024,
			PerActorQueueLimit:      64,
		},
		Arena: Arena{
			Enemies:       2,
			StaticTargets: 3,
			MovingTargets: 2,
		},
		Logging: Logging{
			Sinks:           []string{"console"},
			MinimumSeverity: "info",
			BufferSize:      512,
		},
		Weapons: Weapons{
			CatalogPath: "config/weapons.json",
		},
	}
}

// Load reads the TOML file at path when it exists, applies environment
// overrides, and normalizes out-of-range values. An empty path skips the file
// layer entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if raw := os.Getenv("QS_ADDR"); raw != "" {
		c.Server.Addr = raw
	}
	if raw := os.Getenv("QS_TICK_RATE"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			c.Simulation.TickRate = parsed
		}
	}
	if raw := os.Getenv("QS_SNAPSHOT_INTERVAL_TICKS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			c.Replication.SnapshotIntervalTicks = parsed
		}
	}
	if raw := os.Getenv("QS_RESPAWN_DELAY_MS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			c.Match.RespawnDelayMillis = parsed
		}
	}
	if raw := os.Getenv("QS_HEARTBEAT_TIMEOUT_MS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			c.Network.HeartbeatTimeoutMillis = parsed
		}
	}
	if raw := os.Getenv("QS_LOG_SINKS"); raw != "" {
		parts := strings.Split(raw, ",")
		sinks := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				sinks = append(sinks, trimmed)
			}
		}
		if len(sinks) > 0 {
			c.Logging.Sinks = sinks
		}
	}
	if raw := os.Getenv("QS_LOG_SEVERITY"); raw != "" {
		c.Logging.MinimumSeverity = raw
	}
	if raw := os.Getenv("QS_WEAPON_CATALOG"); raw != "" {
		c.Weapons.CatalogPath = raw
	}
	if raw := os.Getenv("QS_ARENA_SEED"); raw != "" {
		c.Arena.Seed = raw
	}
	if raw := os.Getenv("QS_ENABLE_PPROF_TRACE"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			c.Server.EnablePprofTrace = parsed
		}
	}
}

func (c *Config) normalize() {
	if c.Simulation.TickRate <= 0 {
		c.Simulation.TickRate = 30
	}
	if c.Simulation.TickRate > 128 {
		c.Simulation.TickRate = 128
	}
	if c.Simulation.MaxCatchUpTicks <= 0 {
		c.Simulation.MaxCatchUpTicks = 5
	}
	if c.Match.CountdownSeconds < 0 {
		c.Match.CountdownSeconds = 0
	}
	if c.Match.DurationSeconds <= 0 {
		c.Match.DurationSeconds = 180
	}
	if c.Match.MinReadyPlayers < 1 {
		c.Match.MinReadyPlayers = 1
	}
	if c.Match.RespawnDelayMillis < 0 {
		c.Match.RespawnDelayMillis = 0
	}
	if c.Combat.HistoryCapacity <= 0 {
		c.Combat.HistoryCapacity = 20
	}
	if c.Combat.HistoryWindowMillis <= 0 {
		c.Combat.HistoryWindowMillis = 1000
	}
	if c.Combat.SampleIntervalMillis < 0 {
		c.Combat.SampleIntervalMillis = 0
	}
	if c.Combat.LenientMargin < 0 {
		c.Combat.LenientMargin = 0
	}
	if c.Combat.MaxRewindMillis <= 0 {
		c.Combat.MaxRewindMillis = c.Combat.HistoryWindowMillis
	}
	if c.Combat.EnemyDropProbability < 0 {
		c.Combat.EnemyDropProbability = 0
	}
	if c.Combat.EnemyDropProbability > 1 {
		c.Combat.EnemyDropProbability = 1
	}
	if c.Replication.SnapshotIntervalTicks <= 0 {
		c.Replication.SnapshotIntervalTicks = 60
	}
	if c.Replication.MatchSyncIntervalTicks <= 0 {
		c.Replication.MatchSyncIntervalTicks = 30
	}
	if c.Network.CommandQueueLimit <= 0 {
		c.Network.CommandQueueLimit = 1024
	}
	if c.Network.PerActorQueueLimit <= 0 {
		c.Network.PerActorQueueLimit = 64
	}
	if c.Network.HeartbeatIntervalMillis <= 0 {
		c.Network.HeartbeatIntervalMillis = 2000
	}
	if c.Network.HeartbeatTimeoutMillis <= c.Network.HeartbeatIntervalMillis {
		c.Network.HeartbeatTimeoutMillis = c.Network.HeartbeatIntervalMillis * 5
	}
	if c.Arena.Extent < 0 {
		c.Arena.Extent = 0
	}
	if c.Arena.Enemies < 0 {
		c.Arena.Enemies = 0
	}
	if c.Arena.StaticTargets < 0 {
		c.Arena.StaticTargets = 0
	}
	if c.Arena.MovingTargets < 0 {
		c.Arena.MovingTargets = 0
	}
	if c.Logging.BufferSize <= 0 {
		c.Logging.BufferSize = 512
	}
	if len(c.Logging.Sinks) == 0 {
		c.Logging.Sinks = []string{"console"}
	}
}

// TickInterval converts the configured tick rate into a loop period.
func (s Simulation) TickInterval() time.Duration {
	if s.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(s.TickRate)
}

// HeartbeatTimeout converts the configured staleness window into a duration.
func (n Network) HeartbeatTimeout() time.Duration {
	return time.Duration(n.HeartbeatTimeoutMillis) * time.Millisecond
}

// HeartbeatInterval converts the configured probe cadence into a duration.
func (n Network) HeartbeatInterval() time.Duration {
	return time.Duration(n.HeartbeatIntervalMillis) * time.Millisecond
}

// RespawnDelay converts the configured delay into a duration.
func (m Match) RespawnDelay() time.Duration {
	return time.Duration(m.RespawnDelayMillis) * time.Millisecond
}
