package types

import (
	"fmt"
	"runtime"
)

const maxBacktraceDepth = 64

// Backtrace is a list of program counters captured where an issue or error
// originated.
type Backtrace []uintptr

// CaptureBacktrace records the stack of its caller, skipping skip further
// frames.
func CaptureBacktrace(skip int) Backtrace {
	pcs := make([]uintptr, maxBacktraceDepth)
	n := runtime.Callers(skip+2, pcs)
	return Backtrace(pcs[:n])
}

// Frames symbolicates the backtrace.
func (b Backtrace) Frames() []runtime.Frame {
	if len(b) == 0 {
		return nil
	}
	var out []runtime.Frame
	frames := runtime.CallersFrames(b)
	for {
		f, more := frames.Next()
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}

// Symbols renders each frame as "function file:line".
func (b Backtrace) Symbols() []string {
	frames := b.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line)
	}
	return out
}

func callerLocation(skip int) SourceLocation {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return SourceLocation{}
	}
	return SourceLocation{File: file, Line: line}
}

func callerLocationPtr(skip int) *SourceLocation {
	loc := callerLocation(skip + 1)
	if loc.IsZero() {
		return nil
	}
	return &loc
}

// PanicError wraps a value recovered from a panicking body.
type PanicError struct {
	Value     any
	Backtrace Backtrace
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Catch runs fn and converts a panic into a *PanicError carrying the stack
// of the panicking goroutine.
func Catch(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Backtrace: CaptureBacktrace(1)}
		}
	}()
	return fn()
}
