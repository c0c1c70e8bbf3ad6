package reqpool

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/inflight"
	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/go-dnnproc/dnnvf/transcode"
	"github.com/stretchr/testify/require"
)

// fakeModel is a stub backend: it echoes its input tensor back as
// output on a new goroutine, optionally failing one specific dispatch
// (failOnDispatch). It has no delay option.
type fakeModel struct {
	mu          sync.Mutex
	dispatchNum int
	failOnDispatch int // 1-based; 0 means never fail
}

var _ backend.Model = (*fakeModel)(nil)

func (m *fakeModel) InputDescriptor(string) (tensor.Descriptor, error)  { return tensor.Descriptor{}, nil }
func (m *fakeModel) OutputDescriptor(string) (tensor.Descriptor, error) { return tensor.Descriptor{}, nil }
func (m *fakeModel) ReshapeBatch(int) error                             { return nil }
func (m *fakeModel) SupportsAsync() bool                                { return true }
func (m *fakeModel) Close() error                                       { return nil }

func (m *fakeModel) ExecuteSync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string) (tensor.Descriptor, error) {
	return input, nil
}

func (m *fakeModel) ExecuteAsync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string, cb backend.AsyncCallback) error {
	m.mu.Lock()
	m.dispatchNum++
	n := m.dispatchNum
	m.mu.Unlock()

	if m.failOnDispatch != 0 && n == m.failOnDispatch {
		return fmt.Errorf("simulated dispatch failure")
	}
	go cb(input, nil)
	return nil
}

func newFakeTranscoder(t *testing.T) *transcode.Transcoder {
	t.Helper()
	desc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}}
	tc, err := transcode.New(frame.GRAY8, desc, desc)
	require.NoError(t, err)
	return tc
}

func TestPoolBatchesUntilFull(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	tc := newFakeTranscoder(t)
	list := inflight.New()
	inputDesc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}}

	pool, err := New(model, tc, list, "in", "out", inputDesc, 2, 4)
	require.NoError(t, err)

	fr := frame.New(frame.GRAY8, 2, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(ctx, fr, &inflight.Entry{}))
	}
	// 3 of 4 packed: still FILLING, nothing dispatched yet.
	require.Equal(t, 0, model.dispatchNum)
	require.Equal(t, 2, pool.FreeAndFillingCount()+pool.DispatchedCount())

	require.NoError(t, pool.Submit(ctx, fr, &inflight.Entry{}))
	require.Equal(t, 1, model.dispatchNum)
}

func TestPoolFlushHeadDispatchesPartialBatch(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	tc := newFakeTranscoder(t)
	list := inflight.New()
	inputDesc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}}

	pool, err := New(model, tc, list, "in", "out", inputDesc, 1, 4)
	require.NoError(t, err)

	fr := frame.New(frame.GRAY8, 2, 2)
	require.NoError(t, pool.Submit(ctx, fr, &inflight.Entry{}))
	require.Equal(t, 0, model.dispatchNum)

	require.NoError(t, pool.FlushHead(ctx))
	require.Equal(t, 1, model.dispatchNum)
}

func TestPoolDispatchFailureMarksEntriesDone(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{failOnDispatch: 1}
	tc := newFakeTranscoder(t)
	list := inflight.New()
	inputDesc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}}

	pool, err := New(model, tc, list, "in", "out", inputDesc, 1, 1)
	require.NoError(t, err)

	fr := frame.New(frame.GRAY8, 2, 2)
	entry := &inflight.Entry{}
	err = pool.Submit(ctx, fr, entry)
	require.Error(t, err)

	ready := list.DrainReady(ctx)
	require.Len(t, ready, 1)
	require.Nil(t, ready[0].Output)
	require.Error(t, ready[0].Err)
}

func TestPoolInvariantSlotsSumToNIReq(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{}
	tc := newFakeTranscoder(t)
	list := inflight.New()
	inputDesc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}}

	pool, err := New(model, tc, list, "in", "out", inputDesc, 3, 2)
	require.NoError(t, err)
	require.Equal(t, 3, pool.FreeAndFillingCount()+pool.DispatchedCount())

	fr := frame.New(frame.GRAY8, 2, 2)
	require.NoError(t, pool.Submit(ctx, fr, &inflight.Entry{}))
	require.NoError(t, pool.Submit(ctx, fr, &inflight.Entry{}))
	require.Equal(t, 3, pool.FreeAndFillingCount()+pool.DispatchedCount())
}
