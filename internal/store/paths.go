package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// GlobalCosimPath returns ~/.cosim, where the default ledger, settings and
// the MCP audit log live.
func GlobalCosimPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cosim"), nil
}
