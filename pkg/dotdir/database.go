package dotdir

import "path/filepath"

const (
	databaseFile = "spool.db"
)

// DatabasePath resolves the default sqlite database path inside the target
// .spool/ directory. Used when storage.sqlite_path is not configured.
// If overrideDir is non-empty, it is used instead of the default .spool/ location.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, databaseFile), nil
}
