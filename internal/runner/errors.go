// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"errors"
	"fmt"
	"os/exec"
)

const (
	// KindLaunch means the process or container could not be started.
	KindLaunch Kind = iota
	// KindExit means the command exited with a non-zero code.
	KindExit
	// KindSignal means the command was terminated by a signal.
	KindSignal
	// KindPrecondition means the command was never attempted.
	KindPrecondition
)

// ErrPrecondition is matched by every KindPrecondition error.
var ErrPrecondition = errors.New("precondition failed")

type (
	// Kind classifies a runner Error.
	Kind int

	// Error is the single error type returned by Runner operations.
	Error struct {
		Kind Kind
		// Command is the program or description that failed.
		Command string
		// Code is the exit code for KindExit.
		Code int
		// Reason describes precondition failures.
		Reason string
		Err    error
	}
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLaunch:
		return "launch"
	case KindExit:
		return "exit"
	case KindSignal:
		return "signal"
	case KindPrecondition:
		return "precondition"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindExit:
		return fmt.Sprintf("%s: exited with code %d", e.Command, e.Code)
	case KindSignal:
		return e.Command + ": terminated by signal"
	case KindPrecondition:
		return e.Reason
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: failed to start: %v", e.Command, e.Err)
		}
		return e.Command + ": failed to start"
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports precondition errors as ErrPrecondition.
func (e *Error) Is(target error) bool {
	return target == ErrPrecondition && e.Kind == KindPrecondition
}

func preconditionError(format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Reason: fmt.Sprintf(format, args...)}
}

// exitError converts the result of exec.Cmd.Run or Wait into an Error.
func exitError(command string, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return &Error{Kind: KindExit, Command: command, Code: code, Err: err}
		}
		return &Error{Kind: KindSignal, Command: command, Err: err}
	}
	return &Error{Kind: KindLaunch, Command: command, Err: err}
}

// codeError reports a container engine result code.
func codeError(command string, code int, signaled bool) error {
	switch {
	case signaled:
		return &Error{Kind: KindSignal, Command: command}
	case code != 0:
		return &Error{Kind: KindExit, Command: command, Code: code}
	default:
		return nil
	}
}
