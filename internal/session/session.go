// Package session persists small bits of CLI-invocation state across
// omgctl runs — which transport last worked, and when — the same
// load-defaults-then-overwrite shape paths.Paths' other per-user files
// use, but encoded as YAML rather than JSON (§6 session file).
package session

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// State is the session file's on-disk shape.
type State struct {
	LastCommand    string    `yaml:"last_command"`
	LastTransport  string    `yaml:"last_transport"` // "daemon" or "in_process"
	LastRunAt      time.Time `yaml:"last_run_at"`
	ConsecutiveDaemonMisses int `yaml:"consecutive_daemon_misses"`
}

// Load reads path, returning a zero-value State if it does not exist yet.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, omgerrors.Internal("failed to read session file", err)
	}
	var s State
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, omgerrors.Internal("failed to parse session file", err)
	}
	return s, nil
}

// Save writes state to path, creating or overwriting it.
func Save(path string, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return omgerrors.Internal("failed to encode session file", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// RecordDaemonDial updates s after a dial attempt: a successful dial
// resets the miss streak; a failure increments it so a future client
// could, if SPEC_FULL's §9 fallback tuning ever needs it, back off from
// retrying a daemon that has been unreachable for several runs in a row.
func (s *State) RecordDaemonDial(command string, ok bool) {
	s.LastCommand = command
	s.LastRunAt = time.Now()
	if ok {
		s.LastTransport = "daemon"
		s.ConsecutiveDaemonMisses = 0
		return
	}
	s.LastTransport = "in_process"
	s.ConsecutiveDaemonMisses++
}
