package stack

import (
	"fmt"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

// OutcomeKind classifies how a validation or landing attempt ended
type OutcomeKind int

const (
	// OutcomeOK means the attempt completed
	OutcomeOK OutcomeKind = iota
	// OutcomeDeclined means the user said no to a confirmation
	OutcomeDeclined
	// OutcomeFailed means the attempt stopped on an error
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeDeclined:
		return "declined"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of a validation or landing attempt. A decline is not
// an error inside the engine; it only becomes ErrUserAbort at the edge.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// OK returns a successful outcome
func OK() Outcome {
	return Outcome{Kind: OutcomeOK}
}

// Declined returns an outcome for a refused confirmation
func Declined(reason string) Outcome {
	return Outcome{Kind: OutcomeDeclined, Reason: reason}
}

// Failed returns an outcome wrapping err
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// IsOK reports whether the attempt completed
func (o Outcome) IsOK() bool {
	return o.Kind == OutcomeOK
}

// AsError converts the outcome into an error for callers at the command
// boundary: nil for OK, ErrUserAbort for a decline.
func (o Outcome) AsError() error {
	switch o.Kind {
	case OutcomeOK:
		return nil
	case OutcomeDeclined:
		if o.Reason == "" {
			return arcerrors.ErrUserAbort
		}
		return fmt.Errorf("%s: %w", o.Reason, arcerrors.ErrUserAbort)
	default:
		return o.Err
	}
}
