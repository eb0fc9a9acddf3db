// Package cases expands a parameterized test into its concrete cases.
package cases

import (
	"context"
	"fmt"
	"iter"

	"github.com/ethereum-optimism/infra/op-testengine/types"
)

// ExpansionError reports an argument collection that failed while being
// enumerated. Cases produced before the failure remain valid.
type ExpansionError struct {
	Test      types.ID
	Parameter string
	Err       error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("expanding arguments of %s (parameter %q): %v", e.Test, e.Parameter, e.Err)
}

func (e *ExpansionError) Unwrap() error {
	return e.Err
}

// Expand yields the cases of test in order. A test without parameters has a
// single empty case. With several collections the result is their Cartesian
// product with the last collection varying fastest; inner collections are
// re-enumerated for every value of the outer ones.
//
// If a collection fails, the error is yielded once, as an *ExpansionError,
// and expansion stops. Expansion also stops when ctx is cancelled, yielding
// the context's cause.
func Expand(ctx context.Context, test *types.Test) iter.Seq2[*types.Case, error] {
	return func(yield func(*types.Case, error) bool) {
		if len(test.Arguments) == 0 {
			yield(types.NewCase(nil, nil, 0), nil)
			return
		}
		e := &expansion{ctx: ctx, test: test, yield: yield, values: make([]any, len(test.Arguments))}
		e.level(0)
	}
}

type expansion struct {
	ctx     context.Context
	test    *types.Test
	yield   func(*types.Case, error) bool
	values  []any
	ordinal int
	// done is set once the consumer stopped or an error was yielded.
	done bool
}

func (e *expansion) level(depth int) {
	if depth == len(e.test.Arguments) {
		if err := e.ctx.Err(); err != nil {
			e.fail(context.Cause(e.ctx))
			return
		}
		values := make([]any, len(e.values))
		copy(values, e.values)
		c := types.NewCase(e.test.Parameters, values, e.ordinal)
		e.ordinal++
		if !e.yield(c, nil) {
			e.done = true
		}
		return
	}
	for v, err := range e.test.Arguments[depth]() {
		if err != nil {
			e.fail(&ExpansionError{Test: e.test.ID, Parameter: e.parameterName(depth), Err: err})
			return
		}
		e.values[depth] = v
		e.level(depth + 1)
		if e.done {
			return
		}
	}
}

func (e *expansion) fail(err error) {
	e.done = true
	e.yield(nil, err)
}

func (e *expansion) parameterName(depth int) string {
	if depth < len(e.test.Parameters) {
		return e.test.Parameters[depth].Name
	}
	return fmt.Sprintf("#%d", depth)
}

// Count expands test and returns the number of cases, stopping at the first
// error.
func Count(ctx context.Context, test *types.Test) (int, error) {
	n := 0
	for _, err := range Expand(ctx, test) {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
