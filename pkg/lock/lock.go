// Package lock provides the repo-wide, cross-process ingest session lock.
//
// The lock covers the window compute-digest → store-blob → write-manifest so
// concurrent ingests never interleave torn digests with partial manifests.
// Semantics are honored by the OS kernel (POSIX flock / Windows LockFileEx
// via gofrs/flock), so a crashed holder releases the lock automatically.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// EnvVar toggles the ingest session lock. Unset or unrecognized values mean
// ON; only recognized falsey values disable it.
const EnvVar = "LEDGER_INGEST_SESSION_LOCK"

// SessionLockPath returns the repo-wide ingest lock file. Stored under
// ledger/ so the lock is per-repo/worktree, not per cwd.
func SessionLockPath(repoRoot string) string {
	return filepath.Join(repoRoot, "ledger", ".locks", "ingest.lock")
}

// WithSessionLock runs fn while holding the exclusive ingest session lock.
// Concurrent acquirers block until release; the kernel releases the lock if
// the holder dies.
func WithSessionLock(repoRoot string, fn func() error) error {
	path := SessionLockPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("lock: mkdir: %w", err)
	}

	fl := flock.New(path)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock: acquire %s: %w", path, err)
	}
	defer fl.Unlock()

	return fn()
}

// Enabled decides the session-lock policy. Maximal safety default: ON.
//
// Controls:
//   - optOut: the caller's explicit opt-out flag (e.g. --no-session-lock)
//   - EnvVar: truthy/falsey override, read here at each decision point
//     (never cached)
//
// Unknown env values keep the default ON.
func Enabled(optOut bool) bool {
	return EnabledWithDefault(optOut, true)
}

// EnabledWithDefault is Enabled with a caller-supplied default (e.g. a repo
// config setting). Precedence: the explicit opt-out flag wins, then a
// recognized EnvVar value, then defaultOn. Unrecognized env values fall
// through to the default.
func EnabledWithDefault(optOut, defaultOn bool) bool {
	if optOut {
		return false
	}

	if v, set := os.LookupEnv(EnvVar); set {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "0", "false", "no", "n", "off":
			return false
		case "1", "true", "yes", "y", "on":
			return true
		}
	}
	return defaultOn
}
