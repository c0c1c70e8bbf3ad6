// list.go implements the ordered in-flight list (spec.md §4.2): a
// doubly-linked list of in-flight entries protected by one mutex,
// preserving submission order across out-of-order async completions.

// Package inflight tracks submitted frames until their output is ready,
// preserving strict submission order regardless of backend completion
// order.
package inflight

import (
	"container/list"
	"context"

	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/xaionaro-go/xsync"
)

// Entry links a submitted input frame to its (eventually ready) output
// frame. Done is set exactly once, by whichever thread completes the
// entry (the backend callback thread for a dispatched async request, the
// filter thread in sync mode or on a dispatch-time failure), and read
// only under the owning List's mutex (spec.md §3, invariant 5).
type Entry struct {
	Input  *frame.Frame
	Output *frame.Frame
	Done   bool

	// Err is non-nil when the backend failed this entry (spec.md §7,
	// BackendExecutionError propagated per-frame); Output is nil in
	// that case and poll surfaces the nil so the adapter can drop the
	// frame without terminating the stream.
	Err error

	// Carry is opaque bookkeeping the transcoder attaches at preproc
	// time and needs back at postproc time (e.g. the chroma planes of a
	// planar-YUV frame, transcode.UVCarry). Only the request pool and
	// the transcoder ever inspect it.
	Carry any
}

// List is the ordered in-flight list: entries are appended at Submit
// time in submission order and removed only from the head, only once
// Done, so global order survives out-of-order backend completions
// (spec.md §3, invariant 1).
type List struct {
	locker xsync.Mutex
	l      *list.List
}

// New creates an empty ordered in-flight list.
func New() *List {
	return &List{l: list.New()}
}

// Append adds entry to the tail, in submission order.
func (li *List) Append(ctx context.Context, entry *Entry) {
	xsync.DoR1(ctx, &li.locker, func() error {
		li.l.PushBack(entry)
		return nil
	})
}

// MarkDone sets entry.Done (and optionally Err) under the list mutex,
// satisfying the single-writer/lock-guarded-read discipline required by
// spec.md §3 invariant 5. Called from the backend callback thread, or
// from the filter thread in sync mode and on a dispatch-time failure.
func (li *List) MarkDone(ctx context.Context, entry *Entry, output *frame.Frame, err error) {
	xsync.DoR1(ctx, &li.locker, func() error {
		entry.Output = output
		entry.Err = err
		entry.Done = true
		return nil
	})
}

// DrainReady pops entries from the head while Done is true and stops at
// the first non-done entry (or an empty list), preserving submission
// order even when completions race (spec.md §4.2).
func (li *List) DrainReady(ctx context.Context) []*Entry {
	return xsync.DoR1(ctx, &li.locker, func() []*Entry {
		var ready []*Entry
		for {
			front := li.l.Front()
			if front == nil {
				break
			}
			entry := front.Value.(*Entry)
			if !entry.Done {
				break
			}
			li.l.Remove(front)
			ready = append(ready, entry)
		}
		return ready
	})
}

// Len returns the number of entries still tracked (done or not).
func (li *List) Len(ctx context.Context) int {
	return xsync.DoR1(ctx, &li.locker, func() int {
		return li.l.Len()
	})
}

// IsEmpty reports whether no in-flight entries remain.
func (li *List) IsEmpty(ctx context.Context) bool {
	return li.Len(ctx) == 0
}
