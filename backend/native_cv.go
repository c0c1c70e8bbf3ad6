//go:build with_cv
// +build with_cv

// native_cv.go backs the NATIVE backend variant with gocv.io/x/gocv's
// OpenCV DNN module, gated behind the with_cv build tag the teacher
// already uses for OpenCV-dependent code (kernel/haar_cascade_cv.go),
// so `dnn_backend=native` runs a real, loadable, runnable ONNX model
// instead of a stand-in.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-dnnproc/dnnvf/tensor"
	"gocv.io/x/gocv"
)

type nativeBackend struct{}

func newNative() Backend { return nativeBackend{} }

func (nativeBackend) Variant() Variant { return Native }

func (nativeBackend) Load(ctx context.Context, modelPath string, options string) (Model, error) {
	opts, err := parseNativeOptions(options)
	if err != nil {
		return nil, err
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("unable to load model %q", modelPath)
	}
	return &nativeModel{net: net, opts: opts}, nil
}

// nativeModel wraps a gocv.Net. All calls into the net are serialized:
// gocv/OpenCV nets are not documented as safe for concurrent Forward
// calls from multiple goroutines.
type nativeModel struct {
	mu     sync.Mutex
	net    gocv.Net
	opts   nativeOptions
	closed bool
}

func (m *nativeModel) InputDescriptor(name string) (tensor.Descriptor, error) {
	return tensor.Descriptor{ElementType: m.opts.inputType, Shape: m.opts.inputShape, Layout: tensor.ChannelLast}, nil
}

func (m *nativeModel) OutputDescriptor(name string) (tensor.Descriptor, error) {
	return tensor.Descriptor{ElementType: m.opts.outputType, Shape: m.opts.outputShape, Layout: tensor.ChannelLast}, nil
}

func (m *nativeModel) ReshapeBatch(n int) error {
	m.opts.inputShape[0] = n
	m.opts.outputShape[0] = n
	return nil
}

func (m *nativeModel) SupportsAsync() bool { return false }

func (m *nativeModel) ExecuteSync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string) (tensor.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return tensor.Descriptor{}, fmt.Errorf("model closed")
	}

	blob, err := blobFromDescriptor(input)
	if err != nil {
		return tensor.Descriptor{}, err
	}
	defer blob.Close()

	if inputName != "" {
		m.net.SetInputsNames([]string{inputName})
	}
	m.net.SetInput(blob, inputName)
	out := m.net.Forward(outputName)
	defer out.Close()

	return descriptorFromMat(out, m.opts.outputType)
}

func (m *nativeModel) ExecuteAsync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string, cb AsyncCallback) error {
	// spec.md §4.4: only OPENVINO supports execute_async; the core
	// falls back to sync if async is unavailable, so this should never
	// be called on a NATIVE model, but honor the contract anyway.
	go func() {
		out, err := m.ExecuteSync(ctx, inputName, input, outputName)
		cb(out, err)
	}()
	return nil
}

func (m *nativeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}

func blobFromDescriptor(d tensor.Descriptor) (gocv.Mat, error) {
	sizes := []int{d.Shape.Batch(), d.Shape.Channels(), d.Shape.Height(), d.Shape.Width()}
	mat := gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F)
	dst, err := mat.DataPtrFloat32()
	if err != nil {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("unable to access blob data: %w", err)
	}
	if err := tensor.CopyBytesToFloat32(d.Data, dst); err != nil {
		mat.Close()
		return gocv.Mat{}, err
	}
	return mat, nil
}

func descriptorFromMat(mat gocv.Mat, et tensor.ElementType) (tensor.Descriptor, error) {
	sz := mat.Size()
	var shape tensor.Shape
	for i := 0; i < 4 && i < len(sz); i++ {
		shape[i] = sz[i]
	}
	src, err := mat.DataPtrFloat32()
	if err != nil {
		return tensor.Descriptor{}, fmt.Errorf("unable to access output data: %w", err)
	}
	desc := tensor.NewDescriptor(et, shape, tensor.ChannelLast)
	if err := tensor.CopyFloat32ToBytes(src, desc.Data, et); err != nil {
		return tensor.Descriptor{}, err
	}
	return desc, nil
}
