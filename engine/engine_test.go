package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/go-dnnproc/dnnvf/transcode"
	"github.com/stretchr/testify/require"
)

// orderedFakeModel is the stub backend spec.md §8's concrete scenarios
// call for: it echoes its input tensor back, optionally delaying or
// failing specific dispatches by 1-based dispatch order.
type orderedFakeModel struct {
	mu            sync.Mutex
	dispatchNum   int
	delayEven     bool
	failDispatch  int
	supportsAsync bool
}

var _ backend.Model = (*orderedFakeModel)(nil)

func (m *orderedFakeModel) InputDescriptor(string) (tensor.Descriptor, error)  { return tensor.Descriptor{}, nil }
func (m *orderedFakeModel) OutputDescriptor(string) (tensor.Descriptor, error) { return tensor.Descriptor{}, nil }
func (m *orderedFakeModel) ReshapeBatch(int) error                             { return nil }
func (m *orderedFakeModel) SupportsAsync() bool                                { return m.supportsAsync }
func (m *orderedFakeModel) Close() error                                       { return nil }

func (m *orderedFakeModel) ExecuteSync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string) (tensor.Descriptor, error) {
	return input, nil
}

func (m *orderedFakeModel) ExecuteAsync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string, cb backend.AsyncCallback) error {
	m.mu.Lock()
	m.dispatchNum++
	n := m.dispatchNum
	m.mu.Unlock()

	if m.failDispatch != 0 && n == m.failDispatch {
		return fmt.Errorf("simulated dispatch failure at request %d", n)
	}
	go func() {
		if m.delayEven && n%2 == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		cb(input, nil)
	}()
	return nil
}

func grayTranscoder(t *testing.T, w, h int) *transcode.Transcoder {
	t.Helper()
	desc := tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, h, w}}
	tc, err := transcode.New(frame.GRAY8, desc, desc)
	require.NoError(t, err)
	return tc
}

func TestBatchSaturationOrder(t *testing.T) {
	ctx := context.Background()
	model := &orderedFakeModel{supportsAsync: true}
	tc := grayTranscoder(t, 2, 2)
	e, err := New(Config{
		Model:      model,
		Transcoder: tc,
		InputDesc:  tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}},
		Async:      true,
		NIReq:      2,
		BatchSize:  4,
	})
	require.NoError(t, err)
	require.True(t, e.IsAsync())

	for i := int64(0); i < 9; i++ {
		fr := frame.New(frame.GRAY8, 2, 2)
		fr.PTS = i
		require.NoError(t, e.Submit(ctx, fr))
	}
	require.NoError(t, e.Flush(ctx))

	var got []int64
	for {
		out, _, ok, err := e.Poll(ctx)
		if !ok {
			break
		}
		require.NoError(t, err)
		got = append(got, out.PTS)
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestOutOfOrderCompletion(t *testing.T) {
	ctx := context.Background()
	model := &orderedFakeModel{supportsAsync: true, delayEven: true}
	tc := grayTranscoder(t, 2, 2)
	e, err := New(Config{
		Model:      model,
		Transcoder: tc,
		InputDesc:  tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}},
		Async:      true,
		NIReq:      8,
		BatchSize:  1,
	})
	require.NoError(t, err)

	for i := int64(0); i < 8; i++ {
		fr := frame.New(frame.GRAY8, 2, 2)
		fr.PTS = i
		require.NoError(t, e.Submit(ctx, fr))
	}
	require.NoError(t, e.Flush(ctx))

	var got []int64
	for {
		out, _, ok, err := e.Poll(ctx)
		if !ok {
			break
		}
		require.NoError(t, err)
		got = append(got, out.PTS)
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7}, got)
}

func TestMidStreamDispatchError(t *testing.T) {
	ctx := context.Background()
	model := &orderedFakeModel{supportsAsync: true, failDispatch: 3}
	tc := grayTranscoder(t, 2, 2)
	e, err := New(Config{
		Model:      model,
		Transcoder: tc,
		InputDesc:  tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}},
		Async:      true,
		NIReq:      4,
		BatchSize:  1,
	})
	require.NoError(t, err)

	n := 6
	for i := int64(0); i < int64(n); i++ {
		fr := frame.New(frame.GRAY8, 2, 2)
		fr.PTS = i
		_ = e.Submit(ctx, fr)
	}
	require.NoError(t, e.Flush(ctx))

	var pts []int64
	var errs []error
	var failedInputPTS []int64
	for {
		out, in, ok, err := e.Poll(ctx)
		if !ok {
			break
		}
		if err != nil {
			errs = append(errs, err)
			pts = append(pts, -1)
			require.NotNil(t, in)
			failedInputPTS = append(failedInputPTS, in.PTS)
			continue
		}
		pts = append(pts, out.PTS)
	}
	require.Equal(t, []int64{0, 1, -1, 3, 4, 5}, pts)
	require.Len(t, errs, 1)
	require.Equal(t, []int64{2}, failedInputPTS)
	require.True(t, e.IsEmpty(ctx))
}

func TestSuperResolution2x(t *testing.T) {
	ctx := context.Background()
	b, err := backend.New(backend.OpenVINO)
	require.NoError(t, err)
	model, err := b.Load(ctx, "unused", "input_shape=1,1,240,320;output_shape=1,1,480,640")
	require.NoError(t, err)
	defer model.Close()

	modelInput := tensor.Descriptor{ElementType: tensor.Float32, Shape: tensor.Shape{1, 1, 240, 320}}
	modelOutput := tensor.Descriptor{ElementType: tensor.Float32, Shape: tensor.Shape{1, 1, 480, 640}}
	tc, err := transcode.New(frame.GRAYF32, modelInput, modelOutput)
	require.NoError(t, err)

	e, err := New(Config{
		Model:      model,
		Transcoder: tc,
		InputDesc:  modelInput,
		Async:      false,
	})
	require.NoError(t, err)
	require.False(t, e.IsAsync())

	fr := frame.New(frame.GRAYF32, 320, 240)
	fr.PTS = 100
	require.NoError(t, e.Submit(ctx, fr))

	out, _, ok, err := e.Poll(ctx)
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 640, out.Width)
	require.Equal(t, 480, out.Height)
	require.Equal(t, frame.GRAYF32, out.PixelFormat)
	require.EqualValues(t, 100, out.PTS)
}

func TestSyncModeFallbackWhenAsyncUnsupported(t *testing.T) {
	ctx := context.Background()
	model := &orderedFakeModel{supportsAsync: false}
	tc := grayTranscoder(t, 2, 2)
	e, err := New(Config{
		Model:      model,
		Transcoder: tc,
		InputDesc:  tensor.Descriptor{ElementType: tensor.UInt8, Shape: tensor.Shape{1, 1, 2, 2}},
		Async:      true,
		NIReq:      2,
		BatchSize:  2,
	})
	require.NoError(t, err)
	require.False(t, e.IsAsync())

	fr := frame.New(frame.GRAY8, 2, 2)
	require.NoError(t, e.Submit(ctx, fr))
	out, _, ok, err := e.Poll(ctx)
	require.True(t, ok)
	require.NoError(t, err)
	require.NotNil(t, out)
}
