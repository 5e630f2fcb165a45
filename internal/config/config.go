// Package config loads the Session Server core's own dials from flags and
// environment variables. Server-Manager-level configuration file parsing
// is handled elsewhere; only the core's knobs live here.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Permission is the OR of kRead=4 | kWrite=2 | kExecute=1.
type Permission uint8

const (
	PermRead    Permission = 4
	PermWrite   Permission = 2
	PermExecute Permission = 1
)

// SocketPermissions carries the per-class mode bits applied to the
// session-management socket.
type SocketPermissions struct {
	Owner Permission
	Group Permission
	Other Permission
}

// DefaultSocketPermissions is owner rw, group rw, other rw.
func DefaultSocketPermissions() SocketPermissions {
	return SocketPermissions{
		Owner: PermRead | PermWrite,
		Group: PermRead | PermWrite,
		Other: PermRead | PermWrite,
	}
}

// Config holds the core's own knobs.
type Config struct {
	ClientIPCSocketName string
	SocketPerms         SocketPermissions
	MaxPlaybacks        int
	MaxWebAudioPlayers  int
	SharedMemoryBufferLen uint64
	MaxFrameBytes       uint32
	MaxFDsPerFrame      uint8

	// NumOfFailedPingsBeforeRecovery is the Server Manager knob of the same
	// name, carried here because internal/servermgr's health monitor
	// consumes it directly.
	NumOfFailedPingsBeforeRecovery int
	HealthcheckIntervalSeconds     int
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		ClientIPCSocketName:            "",
		SocketPerms:                    DefaultSocketPermissions(),
		MaxPlaybacks:                   4,
		MaxWebAudioPlayers:             2,
		SharedMemoryBufferLen:          21 * 1024 * 1024,
		MaxFrameBytes:                  1 << 20,
		MaxFDsPerFrame:                 8,
		NumOfFailedPingsBeforeRecovery: 3,
		HealthcheckIntervalSeconds:     5,
	}
}

// Load parses flags and applies environment overrides on top of Default().
// A nil fs is replaced by a fresh "rialto-server" FlagSet; a nil args skips
// flag parsing, leaving only the environment overrides.
func Load(fs *flag.FlagSet, args []string) *Config {
	cfg := Default()
	if fs == nil {
		fs = flag.NewFlagSet("rialto-server", flag.ContinueOnError)
	}

	fs.StringVar(&cfg.ClientIPCSocketName, "socket-name", cfg.ClientIPCSocketName, "client IPC socket name (empty, bare name, or absolute path)")
	fs.IntVar(&cfg.MaxPlaybacks, "max-playbacks", cfg.MaxPlaybacks, "maximum concurrent GENERIC playback sessions")
	fs.IntVar(&cfg.MaxWebAudioPlayers, "max-web-audio-players", cfg.MaxWebAudioPlayers, "maximum concurrent WEB_AUDIO players")
	fs.Uint64Var(&cfg.SharedMemoryBufferLen, "shm-bytes", cfg.SharedMemoryBufferLen, "backing memfd size in bytes")
	fs.IntVar(&cfg.NumOfFailedPingsBeforeRecovery, "failed-pings-before-recovery", cfg.NumOfFailedPingsBeforeRecovery, "health-check failures before recovery")
	fs.IntVar(&cfg.HealthcheckIntervalSeconds, "healthcheck-interval", cfg.HealthcheckIntervalSeconds, "seconds between health-check pings")

	if args != nil {
		_ = fs.Parse(args)
	}

	if v := os.Getenv("RIALTO_SOCKET_NAME"); v != "" {
		cfg.ClientIPCSocketName = v
	}
	if v := os.Getenv("RIALTO_MAX_PLAYBACKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPlaybacks = n
		}
	}
	if v := os.Getenv("RIALTO_MAX_WEB_AUDIO_PLAYERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWebAudioPlayers = n
		}
	}

	return &cfg
}

// ResolveSocketPath accepts the three allowed name forms: empty ->
// server-allocated "/tmp/rialto-<id>", bare name -> "/tmp/<name>",
// absolute path -> used verbatim.
func ResolveSocketPath(name string, allocatedID string) string {
	if name == "" {
		return "/tmp/rialto-" + allocatedID
	}
	if name[0] == '/' {
		return name
	}
	return "/tmp/" + name
}
