package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Status tags printed ahead of progress lines
const (
	TagVerify   = "VERIFY"
	TagVerified = "VERIFIED"
	TagPushing  = "PUSHING"
	TagPreview  = "PREVIEW"
	TagOK       = "OK"
	TagFail     = "FAIL"
	TagSkip     = "SKIP"
	TagCleanup  = "CLEANUP"
	TagRepair   = "REPAIR"
	TagShadow   = "SHADOW"
	TagUnit     = "UNIT"
)

var tagColors = map[string]string{
	TagVerify:   "4",
	TagVerified: "2",
	TagPushing:  "4",
	TagPreview:  "5",
	TagOK:       "2",
	TagFail:     "1",
	TagSkip:     "3",
	TagCleanup:  "3",
	TagRepair:   "5",
	TagShadow:   "8",
	TagUnit:     "6",
}

// InitColor disables colored output when stdout is not a terminal
func InitColor() {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// Tag renders a bold status label with a colored background
func Tag(label string) string {
	color, ok := tagColors[label]
	if !ok {
		color = "8"
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color(color)).
		Render(" " + label + " ")
}

// ColorRed colors text red
func ColorRed(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("1")).
		Render(text)
}

// ColorGreen colors text green
func ColorGreen(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Render(text)
}

// ColorYellow colors text yellow
func ColorYellow(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("3")).
		Render(text)
}

// ColorCyan colors text cyan
func ColorCyan(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("6")).
		Render(text)
}

// ColorDim renders text faint
func ColorDim(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}

// TreeColumn returns the indentation drawn before a branch at depth
func TreeColumn(depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat("  ", depth-1) + "└─ "
}
