package pipeline

import (
	"context"

	"github.com/electwix/db-xref/internal/bridge"
	"github.com/electwix/db-xref/internal/workspace"
)

// Hooks are optional callbacks run at the stages of a Run. A hook error
// aborts the run; AfterRun is called regardless and sees the partial
// summary.
type Hooks struct {
	// BeforeIndex receives the files about to be parsed.
	BeforeIndex func(ctx context.Context, paths []string) error
	// AfterFile runs once per parsed file, serialized, in completion order.
	AfterFile func(ctx context.Context, res FileResult) error
	// AfterIndex runs once parsing and removals are done.
	AfterIndex func(ctx context.Context, engine *workspace.Engine) error
	// BeforeBridge receives the decoded bridge entries.
	BeforeBridge func(ctx context.Context, entries []bridge.Entry) error
	AfterRun     func(ctx context.Context, summary Summary) error
}

// Chain returns hooks that run h and then next at every stage, stopping at
// the first error.
func (h Hooks) Chain(next Hooks) Hooks {
	return Hooks{
		BeforeIndex:  then(h.BeforeIndex, next.BeforeIndex),
		AfterFile:    then(h.AfterFile, next.AfterFile),
		AfterIndex:   then(h.AfterIndex, next.AfterIndex),
		BeforeBridge: then(h.BeforeBridge, next.BeforeBridge),
		AfterRun:     then(h.AfterRun, next.AfterRun),
	}
}

func then[T any](a, b func(context.Context, T) error) func(context.Context, T) error {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) error {
		if err := a(ctx, v); err != nil {
			return err
		}
		return b(ctx, v)
	}
}
