package transport

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grabtexts/wabridge/pkg/logger"
)

// Browser singleton locks the bridge's headless browser leaves behind when
// the previous process crashed. A stale lock makes the next initialization
// fail until it is removed.
var lockNames = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

// EnsureAuthStore creates the persisted-session directory if missing.
func EnsureAuthStore(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating auth store %s: %w", path, err)
	}
	return nil
}

// ClearLocks removes stale singleton lock files from the auth store,
// including those inside per-client session directories.
func ClearLocks(path string) error {
	var candidates []string
	for _, name := range lockNames {
		candidates = append(candidates, filepath.Join(path, name))
		matches, err := filepath.Glob(filepath.Join(path, "session-*", name))
		if err == nil {
			candidates = append(candidates, matches...)
		}
	}

	var firstErr error
	for _, p := range candidates {
		err := os.Remove(p)
		if err == nil {
			logger.InfoCF("transport", "removed stale lock", map[string]interface{}{
				"path": p,
			})
			continue
		}
		if !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return firstErr
}

// ClearSession wipes the stored session for one client id, forcing a fresh
// pairing round on the next connect. Used after the provider reports a
// logout, which invalidates the stored credentials.
func ClearSession(path, clientID string) error {
	dir := filepath.Join(path, "session-"+clientID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing session dir %s: %w", dir, err)
	}
	logger.InfoCF("transport", "cleared stored session", map[string]interface{}{
		"dir": dir,
	})
	return nil
}
