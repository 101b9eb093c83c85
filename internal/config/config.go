// Package config holds the runtime configuration for the skirmish master and
// worker processes. Every value has a numeric or boolean default and can be
// overridden through the environment using the SKIRMISH_ prefix, e.g.
// SKIRMISH_NUM_WORKERS=4.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full configuration surface shared by the master and the
// workers. Workers receive the subset they need through their environment at
// spawn time; both sides construct the same struct so defaults stay in one
// place.
type Config struct {
	// Cluster topology.
	NumWorkers          int
	MaxRoomsPerWorker   int
	MaxPlayersPerWorker int

	// Supervision timing.
	MetricsInterval   time.Duration
	HeartbeatInterval time.Duration
	RestartDelay      time.Duration
	ShutdownTimeout   time.Duration
	IPCTimeout        time.Duration

	// Memory ratio above which a worker is flagged in the periodic metrics
	// snapshot. Warning only, never fatal.
	MemoryWarnThreshold float64

	// Session / simulation.
	RoomIdleTimeout time.Duration
	TickRate        int
	RespawnDelay    time.Duration
	HealDuration    time.Duration
	DashRecharge    time.Duration

	// Listeners.
	StatusAddr     string
	WorkerBasePort int

	// External ban gate. Empty URL disables the check entirely.
	BanCheckURL     string
	BanCheckTimeout time.Duration

	LogLevel string
}

// Load builds a Config from defaults plus environment overrides. A .env file
// in the working directory is honoured when present but is not required.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("skirmish")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("num_workers", runtime.NumCPU())
	v.SetDefault("max_rooms_per_worker", 50)
	v.SetDefault("max_players_per_worker", 200)
	v.SetDefault("metrics_interval", 30*time.Second)
	v.SetDefault("heartbeat_interval", 10*time.Second)
	v.SetDefault("restart_delay", 3*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("ipc_timeout", 5*time.Second)
	v.SetDefault("memory_warn_threshold", 0.8)
	v.SetDefault("room_idle_timeout", 60*time.Second)
	v.SetDefault("tick_rate", 20)
	v.SetDefault("respawn_delay", 3*time.Second)
	v.SetDefault("heal_duration", 2*time.Second)
	v.SetDefault("dash_recharge", 5*time.Second)
	v.SetDefault("status_addr", ":9090")
	v.SetDefault("worker_base_port", 8100)
	v.SetDefault("ban_check_url", "")
	v.SetDefault("ban_check_timeout", 2*time.Second)
	v.SetDefault("log_level", "info")

	return Config{
		NumWorkers:          v.GetInt("num_workers"),
		MaxRoomsPerWorker:   v.GetInt("max_rooms_per_worker"),
		MaxPlayersPerWorker: v.GetInt("max_players_per_worker"),
		MetricsInterval:     v.GetDuration("metrics_interval"),
		HeartbeatInterval:   v.GetDuration("heartbeat_interval"),
		RestartDelay:        v.GetDuration("restart_delay"),
		ShutdownTimeout:     v.GetDuration("shutdown_timeout"),
		IPCTimeout:          v.GetDuration("ipc_timeout"),
		MemoryWarnThreshold: v.GetFloat64("memory_warn_threshold"),
		RoomIdleTimeout:     v.GetDuration("room_idle_timeout"),
		TickRate:            v.GetInt("tick_rate"),
		RespawnDelay:        v.GetDuration("respawn_delay"),
		HealDuration:        v.GetDuration("heal_duration"),
		DashRecharge:        v.GetDuration("dash_recharge"),
		StatusAddr:          v.GetString("status_addr"),
		WorkerBasePort:      v.GetInt("worker_base_port"),
		BanCheckURL:         v.GetString("ban_check_url"),
		BanCheckTimeout:     v.GetDuration("ban_check_timeout"),
		LogLevel:            v.GetString("log_level"),
	}
}

// Validate checks the configuration for values that must abort startup. It is
// called once by the master before any worker is forked; a non-nil error is
// fatal, an invalid configuration never forks a worker.
func (c Config) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be >= 1, got %d", c.NumWorkers)
	}
	if c.NumWorkers > runtime.NumCPU() {
		return fmt.Errorf("num_workers %d exceeds available CPUs (%d)", c.NumWorkers, runtime.NumCPU())
	}
	if c.MemoryWarnThreshold <= 0 || c.MemoryWarnThreshold > 1 {
		return fmt.Errorf("memory_warn_threshold must be in (0, 1], got %v", c.MemoryWarnThreshold)
	}
	if c.MaxRoomsPerWorker < 1 {
		return fmt.Errorf("max_rooms_per_worker must be >= 1, got %d", c.MaxRoomsPerWorker)
	}
	if c.MaxPlayersPerWorker < 1 {
		return fmt.Errorf("max_players_per_worker must be >= 1, got %d", c.MaxPlayersPerWorker)
	}
	if c.TickRate < 1 {
		return fmt.Errorf("tick_rate must be >= 1, got %d", c.TickRate)
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"metrics_interval", c.MetricsInterval},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"restart_delay", c.RestartDelay},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"ipc_timeout", c.IPCTimeout},
		{"room_idle_timeout", c.RoomIdleTimeout},
		{"respawn_delay", c.RespawnDelay},
		{"heal_duration", c.HealDuration},
		{"dash_recharge", c.DashRecharge},
		{"ban_check_timeout", c.BanCheckTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.val)
		}
	}
	if c.WorkerBasePort < 1 || c.WorkerBasePort+c.NumWorkers > 65535 {
		return fmt.Errorf("worker_base_port %d leaves no room for %d workers", c.WorkerBasePort, c.NumWorkers)
	}
	return nil
}

// WorkerPort returns the websocket listen port for a worker slot. Slots are
// 0..NumWorkers-1 and survive worker replacement, so ports stay contiguous
// above WorkerBasePort no matter how many restarts have happened.
func (c Config) WorkerPort(slot int) int {
	return c.WorkerBasePort + slot
}
