package inflight

import (
	"context"
	"errors"
	"testing"

	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend execution failed")

func TestDrainReadyPreservesOrder(t *testing.T) {
	ctx := context.Background()
	li := New()

	entries := make([]*Entry, 4)
	for i := range entries {
		entries[i] = &Entry{Input: &frame.Frame{PTS: int64(i)}}
		li.Append(ctx, entries[i])
	}

	// Complete out of order: 1, 3, then 0, then 2.
	li.MarkDone(ctx, entries[1], &frame.Frame{PTS: 1}, nil)
	li.MarkDone(ctx, entries[3], &frame.Frame{PTS: 3}, nil)

	// Nothing drains yet: head (entry 0) is not done.
	require.Empty(t, li.DrainReady(ctx))

	li.MarkDone(ctx, entries[0], &frame.Frame{PTS: 0}, nil)
	ready := li.DrainReady(ctx)
	require.Len(t, ready, 2)
	require.EqualValues(t, 0, ready[0].Output.PTS)
	require.EqualValues(t, 1, ready[1].Output.PTS)

	require.Empty(t, li.DrainReady(ctx))
	require.Equal(t, 2, li.Len(ctx))

	li.MarkDone(ctx, entries[2], &frame.Frame{PTS: 2}, nil)
	ready = li.DrainReady(ctx)
	require.Len(t, ready, 2)
	require.EqualValues(t, 2, ready[0].Output.PTS)
	require.EqualValues(t, 3, ready[1].Output.PTS)

	require.True(t, li.IsEmpty(ctx))
}

func TestDrainReadyErroredEntrySurfacesNilOutput(t *testing.T) {
	ctx := context.Background()
	li := New()
	e := &Entry{Input: &frame.Frame{PTS: 5}}
	li.Append(ctx, e)
	li.MarkDone(ctx, e, nil, errBackend)

	ready := li.DrainReady(ctx)
	require.Len(t, ready, 1)
	require.Nil(t, ready[0].Output)
	require.ErrorIs(t, ready[0].Err, errBackend)
}
