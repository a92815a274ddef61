package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// stacked carries the program counters captured where an error entered our code
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

func captureStack(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// 2 skips runtime.Callers + captureStack
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func stackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: captureStack(skip)}
}

// WithStack attaches the caller's stack to err unconditionally.
func WithStack(err error) error { return stackSkip(err, 2) }

// EnsureTrace attaches a stack only if nothing in the chain already carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return stackSkip(err, 2)
}

// annotated prefixes a message and remembers the single call site that added it
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	// 2 skips runtime.Callers + callerPC
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// kinded tags an error with a sentinel so errors.Is matches both the
// sentinel and everything in the original chain
type kinded struct {
	kind error
	err  error
	pc   uintptr
}

func (k *kinded) Error() string     { return k.kind.Error() + ": " + k.err.Error() }
func (k *kinded) Unwrap() []error   { return []error{k.kind, k.err} }
func (k *kinded) PC() uintptr       { return k.pc }
func (k *kinded) IsXerrorsWrapper() {}

// Mark classifies err as kind without losing the cause.
// Mark(nil, kind) returns nil.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	if kind == nil {
		return err
	}
	return &kinded{kind: kind, err: err, pc: callerPC(1)}
}

func New(msg string) error             { return stackSkip(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return stackSkip(fmt.Errorf(f, args...), 2) }
