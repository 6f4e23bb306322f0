// Package paths resolves OMG's on-disk layout (§6: data/config/cache
// directories and the daemon socket path) with environment overrides, and
// gates the process-wide test-mode flag described in §5 ("Test mode (env
// flag) disables privilege elevation and daemon dialing so unit tests can
// exercise the in-process path deterministically").
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "omg"

// Paths is the resolved filesystem layout for one process.
type Paths struct {
	DataDir   string
	ConfigDir string
	CacheDir  string
	Socket    string
}

// Resolve computes Paths from the environment, following §6: explicit
// OMG_DATA_DIR/OMG_CONFIG_DIR/OMG_CACHE_DIR overrides win; otherwise XDG base
// directories are used, falling back to dotfiles under $HOME.
func Resolve() Paths {
	p := Paths{
		DataDir:   firstNonEmpty(os.Getenv("OMG_DATA_DIR"), xdgDir("XDG_DATA_HOME", ".local/share")),
		ConfigDir: firstNonEmpty(os.Getenv("OMG_CONFIG_DIR"), xdgDir("XDG_CONFIG_HOME", ".config")),
		CacheDir:  firstNonEmpty(os.Getenv("OMG_CACHE_DIR"), xdgDir("XDG_CACHE_HOME", ".cache")),
	}
	p.Socket = resolveSocket(p.CacheDir)
	return p
}

func xdgDir(envVar, fallbackRelative string) string {
	if base := strings.TrimSpace(os.Getenv(envVar)); base != "" {
		return filepath.Join(base, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, fallbackRelative, appName)
}

func resolveSocket(cacheDir string) string {
	if explicit := strings.TrimSpace(os.Getenv("OMG_SOCKET_PATH")); explicit != "" {
		return explicit
	}
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, appName+".sock")
	}
	return filepath.Join(cacheDir, appName+".sock")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// EnsureDirs creates DataDir/ConfigDir/CacheDir (owner-only permissions, the
// license/audit files within inherit the same posture per §4.4).
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.DataDir, p.ConfigDir, p.CacheDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// File layout helpers (§6).

func (p Paths) LicenseFile() string      { return filepath.Join(p.DataDir, "license.json") }
func (p Paths) UsageFile() string        { return filepath.Join(p.DataDir, "usage.json") }
func (p Paths) SessionFile() string      { return filepath.Join(p.DataDir, "session.yaml") }
func (p Paths) EventQueueFile() string   { return filepath.Join(p.DataDir, "event_queue.json") }
func (p Paths) AuditLogFile() string     { return filepath.Join(p.DataDir, "audit.log") }
func (p Paths) SnapshotsDir() string     { return filepath.Join(p.DataDir, "snapshots") }
func (p Paths) PolicyFile() string       { return filepath.Join(p.ConfigDir, "policy.toml") }
func (p Paths) UserConfigFile() string   { return filepath.Join(p.ConfigDir, "config.toml") }
func (p Paths) LockFile() string         { return filepath.Join(p.DataDir, "omg.lock.json") }

// TestMode reports whether OMG_TEST_MODE is set, which disables privilege
// elevation and daemon dialing (§5) so tests exercise the in-process path
// deterministically.
func TestMode() bool {
	return isTruthy(os.Getenv("OMG_TEST_MODE"))
}

// DaemonDisabled reports whether the client should skip dialing the daemon
// and use the in-process Package Engine façade directly (§4.2 Client
// fallback). True in test mode or when OMG_DISABLE_DAEMON is set.
func DaemonDisabled() bool {
	return TestMode() || isTruthy(os.Getenv("OMG_DISABLE_DAEMON"))
}

// TelemetryEnabled reports whether event queueing/flush is active (§4.4
// Privacy: "A single env-var opt-out (OMG_TELEMETRY=0) disables both event
// queueing and flush"). OMG_DISABLE_TELEMETRY is accepted as a synonym.
func TelemetryEnabled() bool {
	if isTruthy(os.Getenv("OMG_DISABLE_TELEMETRY")) {
		return false
	}
	v := strings.TrimSpace(os.Getenv("OMG_TELEMETRY"))
	if v == "" {
		return true
	}
	return isTruthy(v)
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
