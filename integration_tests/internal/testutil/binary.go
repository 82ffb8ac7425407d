package testutil

import (
	"os"
	"path/filepath"
)

// GetBinaryPath returns the path to the energy-etl binary for integration tests.
// It checks the current directory, then the repository root, then bin/.
func GetBinaryPath() string {
	if _, err := os.Stat("energy-etl"); err == nil {
		return "./energy-etl"
	}

	if _, err := os.Stat("../energy-etl"); err == nil {
		return "../energy-etl"
	}

	binPath := filepath.Join("..", "bin", "energy-etl")
	if _, err := os.Stat(binPath); err == nil {
		return binPath
	}

	return "./energy-etl"
}
