// Package tui provides the terminal output layer of arcstack.
//
// It handles:
//   - Structured logging and status reporting (Splog)
//   - Status tags and colors (using lipgloss)
//   - Confirmation prompts (using survey)
package tui
