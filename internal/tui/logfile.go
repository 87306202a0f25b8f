package tui

import (
	"os"
	"path/filepath"
)

// GetLogFilePath returns the path to the log file.
// If ARCSTACK_LOG_FILE is set, uses that path.
// Otherwise, uses ~/.arcstack/logs/arcstack.log
func GetLogFilePath() string {
	if customPath := os.Getenv("ARCSTACK_LOG_FILE"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "arcstack.log"
	}

	return filepath.Join(homeDir, ".arcstack", "logs", "arcstack.log")
}
