// reference.go implements a software reference model shared by the
// TENSORFLOW and OPENVINO variants. Neither library appears anywhere in
// the retrieved example corpus as a Go binding (see DESIGN.md), so
// rather than fabricate a cgo dependency on either SDK, both variants
// run the same pure-Go per-channel bilinear resampler: it satisfies the
// backend contract (spec.md §4.4) end-to-end — including OPENVINO's
// execute_async — without pretending to wrap a library nobody imports.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-dnnproc/dnnvf/tensor"
)

type referenceModel struct {
	mu            sync.Mutex
	opts          nativeOptions
	supportsAsync bool
	closed        bool
}

func newReferenceModel(options string, supportsAsync bool) (*referenceModel, error) {
	opts, err := parseNativeOptions(options)
	if err != nil {
		return nil, err
	}
	return &referenceModel{opts: opts, supportsAsync: supportsAsync}, nil
}

func (m *referenceModel) InputDescriptor(name string) (tensor.Descriptor, error) {
	return tensor.Descriptor{ElementType: m.opts.inputType, Shape: m.opts.inputShape, Layout: tensor.ChannelLast}, nil
}

func (m *referenceModel) OutputDescriptor(name string) (tensor.Descriptor, error) {
	return tensor.Descriptor{ElementType: m.opts.outputType, Shape: m.opts.outputShape, Layout: tensor.ChannelLast}, nil
}

func (m *referenceModel) ReshapeBatch(n int) error {
	m.opts.inputShape[0] = n
	m.opts.outputShape[0] = n
	return nil
}

func (m *referenceModel) SupportsAsync() bool { return m.supportsAsync }

func (m *referenceModel) ExecuteSync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string) (tensor.Descriptor, error) {
	m.mu.Lock()
	closed := m.closed
	out := m.opts.outputShape
	out[0] = input.Shape.Batch()
	outType := m.opts.outputType
	m.mu.Unlock()
	if closed {
		return tensor.Descriptor{}, fmt.Errorf("model closed")
	}
	return resampleBilinear(input, out, outType)
}

func (m *referenceModel) ExecuteAsync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string, cb AsyncCallback) error {
	if !m.supportsAsync {
		return fmt.Errorf("this backend variant does not support execute_async")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("model closed")
	}
	m.mu.Unlock()
	go func() {
		out, err := m.ExecuteSync(ctx, inputName, input, outputName)
		cb(out, err)
	}()
	return nil
}

func (m *referenceModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// resampleBilinear resizes each channel of each batch entry of input
// (NHWC data, tensor.ChannelLast) from input.Shape's (H,W) to out's
// (H,W) with bilinear interpolation, writing NHWC output,
// standing in for whatever spatial transform a real model performs
// (identity when the shapes already match).
func resampleBilinear(input tensor.Descriptor, outShape tensor.Shape, outType tensor.ElementType) (tensor.Descriptor, error) {
	n, c, hIn, wIn := input.Shape.Batch(), input.Shape.Channels(), input.Shape.Height(), input.Shape.Width()
	hOut, wOut := outShape.Height(), outShape.Width()
	if outShape.Channels() != c {
		outShape = tensor.Shape{n, c, hOut, wOut}
	}

	inFloat := make([]float32, n*c*hIn*wIn)
	if input.ElementType == tensor.UInt8 {
		for i, b := range input.Data {
			inFloat[i] = float32(b)
		}
	} else {
		if err := tensor.CopyBytesToFloat32(input.Data, inFloat); err != nil {
			return tensor.Descriptor{}, err
		}
	}

	out := tensor.NewDescriptor(outType, outShape, tensor.ChannelLast)
	outFloat := make([]float32, n*c*hOut*wOut)

	scaleY := float64(hIn) / float64(hOut)
	scaleX := float64(wIn) / float64(wOut)
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			for y := 0; y < hOut; y++ {
				srcY := (float64(y)+0.5)*scaleY - 0.5
				y0 := clampInt(int(srcY), 0, hIn-1)
				y1 := clampInt(y0+1, 0, hIn-1)
				fy := float32(srcY - float64(y0))
				if fy < 0 {
					fy = 0
				}
				for x := 0; x < wOut; x++ {
					srcX := (float64(x)+0.5)*scaleX - 0.5
					x0 := clampInt(int(srcX), 0, wIn-1)
					x1 := clampInt(x0+1, 0, wIn-1)
					fx := float32(srcX - float64(x0))
					if fx < 0 {
						fx = 0
					}
					v00 := inFloat[((b*hIn+y0)*wIn+x0)*c+ch]
					v01 := inFloat[((b*hIn+y0)*wIn+x1)*c+ch]
					v10 := inFloat[((b*hIn+y1)*wIn+x0)*c+ch]
					v11 := inFloat[((b*hIn+y1)*wIn+x1)*c+ch]
					top := v00 + (v01-v00)*fx
					bot := v10 + (v11-v10)*fx
					outFloat[((b*hOut+y)*wOut+x)*c+ch] = top + (bot-top)*fy
				}
			}
		}
	}

	if err := tensor.CopyFloat32ToBytes(outFloat, out.Data, outType); err != nil {
		return tensor.Descriptor{}, err
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
