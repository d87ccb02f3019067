package gitrepo

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyRemote       = errors.New("remote has no history for the tracked branch")
	ErrDivergence        = errors.New("local and remote histories diverged")
	ErrRemoteUnreachable = errors.New("remote unreachable")
	ErrNothingToCommit   = errors.New("nothing to commit")
)

// CommandError carries a failed git invocation. Args and Output are already
// redacted of credentials.
type CommandError struct {
	Args   []string
	Output string
	Kind   FailureKind
	Err    error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s failed: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s failed: %v\n%s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrEmptyRemote:
		return e.Kind == FailureEmptyRemote
	case ErrDivergence:
		return e.Kind == FailureDivergence
	case ErrRemoteUnreachable:
		return e.Kind == FailureRemoteUnreachable
	case ErrNothingToCommit:
		return e.Kind == FailureNothingToCommit
	default:
		return false
	}
}

// KindOf returns the failure kind of err, or FailureUnclassified when err is
// not a CommandError.
func KindOf(err error) FailureKind {
	if ce, ok := errors.AsType[*CommandError](err); ok {
		return ce.Kind
	}
	return FailureUnclassified
}
