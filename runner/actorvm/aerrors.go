package actorvm

import (
	"fmt"

	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"
)

// ActorError is raised by actors (through Runtime.Abortf) and by the VM. It
// aborts the invocation and carries the exit code reported for it.
type ActorError interface {
	error
	RetCode() exitcode.ExitCode
}

type actorError struct {
	retCode exitcode.ExitCode
	msg     string
	frame   xerrors.Frame
	err     error
}

func (e *actorError) RetCode() exitcode.ExitCode {
	return e.retCode
}

func (e *actorError) Error() string {
	return fmt.Sprint(e)
}

func (e *actorError) Format(s fmt.State, v rune) { xerrors.FormatError(e, s, v) }

func (e *actorError) FormatError(p xerrors.Printer) (next error) {
	p.Print(e.msg)
	p.Printf(" (RetCode=%d)", e.retCode)
	e.frame.Format(p)
	return e.err
}

func (e *actorError) Unwrap() error {
	return e.err
}

var _ ActorError = (*actorError)(nil)

// Newf creates a new ActorError with the given exit code.
func Newf(retCode exitcode.ExitCode, format string, args ...interface{}) ActorError {
	return newfSkip(2, retCode, format, args...)
}

func newfSkip(skip int, retCode exitcode.ExitCode, format string, args ...interface{}) ActorError {
	return &actorError{
		retCode: retCode,
		msg:     fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(skip),
	}
}

// Absorb wraps err in an ActorError unless it already is one.
func Absorb(err error, retCode exitcode.ExitCode, msg string) ActorError {
	if err == nil {
		return nil
	}
	var aerr ActorError
	if xerrors.As(err, &aerr) {
		return aerr
	}
	return &actorError{
		retCode: retCode,
		msg:     msg,
		frame:   xerrors.Caller(1),
		err:     err,
	}
}

// Message returns the message of err without the exit code or frame.
func Message(err ActorError) string {
	if ae, ok := err.(*actorError); ok {
		if ae.err != nil {
			return ae.msg + ": " + ae.err.Error()
		}
		return ae.msg
	}
	return err.Error()
}
