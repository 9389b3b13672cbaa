package urlrouter

import (
	"errors"
	"fmt"
)

// ErrNotFound is what callers see for every "no route" outcome.
var ErrNotFound = errors.New("no route found")

// ErrNoMatch means no enabled rule matched the input.
var ErrNoMatch = fmt.Errorf("%w: no rule matched", ErrNotFound)

// ResolutionError means a rule matched but one of its parameters could not be
// resolved. It is indistinguishable from ErrNoMatch through errors.Is.
type ResolutionError struct {
	RuleID int
	Group  int
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("rule %d: group %d unresolved: %v", e.RuleID, e.Group, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is makes every ResolutionError match ErrNotFound.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrNotFound
}

var (
	errMissingGroup    = errors.New("referenced group absent from match")
	errUnboundGroup    = errors.New("placeholder has no parameter spec")
	errLeftPlaceholder = errors.New("unsubstituted placeholder")
)
