package tui

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

// ErrInteractiveDisabled is returned when interactive prompts are disabled via ARCSTACK_NO_INTERACTIVE
var ErrInteractiveDisabled = fmt.Errorf("interactive prompts are disabled (ARCSTACK_NO_INTERACTIVE is set)")

// Prompter asks the user yes/no questions
type Prompter interface {
	Confirm(message string, defaultValue bool) (bool, error)
}

// SurveyPrompter prompts on the controlling terminal
type SurveyPrompter struct{}

// NewPrompter returns the terminal prompter
func NewPrompter() Prompter {
	return SurveyPrompter{}
}

func checkInteractiveAllowed() error {
	if os.Getenv("ARCSTACK_NO_INTERACTIVE") != "" {
		return ErrInteractiveDisabled
	}
	return nil
}

// Confirm asks a yes/no question. Ctrl+C is reported as ErrUserAbort.
func (SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	if err := checkInteractiveAllowed(); err != nil {
		return false, err
	}
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return false, arcerrors.ErrUserAbort
		}
		return false, err
	}
	return answer, nil
}
