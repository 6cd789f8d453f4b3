// Package dbcontext implements the Connection Context: a stack of
// {database, role, shard, prevent_writes} frames threaded on Go's
// context.Context chain. Go has no true fiber/thread-local storage; the
// context chain is the idiomatic equivalent and still gives per-task
// isolation (a context.Context is never shared across goroutines that
// don't explicitly pass it) plus guaranteed LIFO release: a pushed frame
// lives only on the child context handed to the scope's callback.
package dbcontext

import (
	"context"

	"eve.evalgo.org/multidb/registry"
)

// Frame is one pushed scope. Unset fields (empty string / nil pointer)
// inherit from the enclosing frame; innermost frame wins per field.
type Frame struct {
	Database      string
	Role          registry.Role
	Shard         string
	PreventWrites bool
	StickyRole    registry.Role

	hasDatabase      bool
	hasRole          bool
	hasShard         bool
	hasPreventWrites bool
}

type frameKey struct{}

// current merges the stack into a single effective Frame. Current() is
// its exported wrapper.
func current(ctx context.Context) Frame {
	frames, _ := ctx.Value(frameKey{}).([]Frame)
	var merged Frame
	for _, f := range frames {
		if f.hasDatabase {
			merged.Database = f.Database
			merged.hasDatabase = true
		}
		if f.hasRole {
			merged.Role = f.Role
			merged.hasRole = true
		}
		if f.hasShard {
			merged.Shard = f.Shard
			merged.hasShard = true
		}
		if f.hasPreventWrites {
			merged.PreventWrites = f.PreventWrites
			merged.hasPreventWrites = true
		}
		if f.StickyRole != "" {
			merged.StickyRole = f.StickyRole
		}
	}
	return merged
}

// Current returns the effective frame for ctx: the merge of every pushed
// frame with innermost precedence per field.
func Current(ctx context.Context) Frame {
	return current(ctx)
}

// Options configures a pushed frame; zero value pointers mean "inherit".
type Options struct {
	Database      *string
	Role          *registry.Role
	Shard         *string
	PreventWrites *bool
}

// ConnectedTo pushes a frame for the duration of fn, guaranteeing pop on
// every exit path (normal return, panic, or error): the frame is placed
// only on the child context passed to fn, never on ctx. Ordering is
// strict LIFO within one goroutine; concurrent goroutines derive their own
// child contexts and never observe each other's frames, satisfying
// invariant 3 (context isolation) and invariant 4 (LIFO frames).
func ConnectedTo(ctx context.Context, opts Options, fn func(context.Context) error) error {
	frame := Frame{}
	if opts.Database != nil {
		frame.Database = *opts.Database
		frame.hasDatabase = true
	}
	if opts.Role != nil {
		frame.Role = *opts.Role
		frame.hasRole = true
	}
	if opts.Shard != nil {
		frame.Shard = *opts.Shard
		frame.hasShard = true
	}
	if opts.PreventWrites != nil {
		frame.PreventWrites = *opts.PreventWrites
		frame.hasPreventWrites = true
	}

	existing, _ := ctx.Value(frameKey{}).([]Frame)
	pushed := make([]Frame, len(existing)+1)
	copy(pushed, existing)
	pushed[len(existing)] = frame

	child := context.WithValue(ctx, frameKey{}, pushed)
	return fn(child)
}

// WhilePreventingWrites pushes a frame with PreventWrites=true; any write
// attempted inside fn must check CheckWritable and raise ReadOnlyError.
func WhilePreventingWrites(ctx context.Context, fn func(context.Context) error) error {
	preventWrites := true
	return ConnectedTo(ctx, Options{PreventWrites: &preventWrites}, fn)
}

// IsWritePrevented reports whether the current frame stack forbids
// writes, for callers to check before issuing a write statement.
func IsWritePrevented(ctx context.Context) bool {
	return current(ctx).PreventWrites
}
