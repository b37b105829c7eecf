package paths

import (
	"os"
	"path/filepath"
)

// StateDir returns the evalbot state directory, following XDG conventions:
// $XDG_STATE_HOME/evalbot or ~/.local/state/evalbot as fallback.
func StateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "evalbot"), nil
}
