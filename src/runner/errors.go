package runner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by RunFile when the script does not exist.
	ErrNotFound = errors.New("script not found")
	// ErrNoInterpreter matches every *ExecutionError.
	ErrNoInterpreter = errors.New("no interpreter could be started")
)

// IOError reports a failure to prepare the script on disk.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Attempt is one interpreter that failed to start.
type Attempt struct {
	Interpreter string
	Err         error
}

// ExecutionError is returned when none of the interpreter candidates could
// be started.
type ExecutionError struct {
	Script   string
	Attempts []Attempt
}

func (e *ExecutionError) Error() string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Interpreter)
	}
	msg := fmt.Sprintf("run %s: %v (tried %s)", e.Script, ErrNoInterpreter, strings.Join(names, ", "))
	if last := e.Last(); last != nil {
		msg += ": " + last.Error()
	}
	return msg
}

// Last returns the error of the final attempt, or nil.
func (e *ExecutionError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *ExecutionError) Is(target error) bool { return target == ErrNoInterpreter }

func (e *ExecutionError) Unwrap() error { return e.Last() }
