// backend.go defines the polymorphic backend contract (spec.md §4.4): a
// uniform interface over model loading, descriptor queries, batch
// reshaping, synchronous execution, and callback-driven asynchronous
// execution, implemented as an interface with per-variant payloads
// instead of the source's function-pointer table (spec.md §9, "Function-
// pointer polymorphism over the backend").
package backend

import (
	"context"
	"fmt"

	"github.com/go-dnnproc/dnnvf/tensor"
)

// Variant selects which backend implementation a stage loads, matching
// the dnn_backend option's native/tensorflow/openvino constants
// (spec.md §6, SPEC_FULL.md §4 "Supplemented from original_source").
type Variant int

const (
	Native Variant = iota
	TensorFlow
	OpenVINO
)

func (v Variant) String() string {
	switch v {
	case Native:
		return "native"
	case TensorFlow:
		return "tensorflow"
	case OpenVINO:
		return "openvino"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant maps a stage option string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "native":
		return Native, nil
	case "tensorflow":
		return TensorFlow, nil
	case "openvino":
		return OpenVINO, nil
	default:
		return 0, fmt.Errorf("unknown dnn_backend %q, expected native/tensorflow/openvino", s)
	}
}

// AsyncCallback is invoked exactly once, on a backend worker thread, when
// an ExecuteAsync call completes (spec.md §4.4). err is non-nil if the
// backend failed the request; output is only meaningful when err == nil.
type AsyncCallback func(output tensor.Descriptor, err error)

// Model is the opaque handle produced by loading a model file (spec.md
// §3, "Model handle"). The batch dimension may be reshaped exactly once,
// at load time (spec.md, Non-goals: "dynamic model reshaping after the
// first frame").
type Model interface {
	// InputDescriptor returns the descriptor of the named input tensor
	// (Data is unset — this is a shape/type query, not a buffer).
	InputDescriptor(name string) (tensor.Descriptor, error)
	// OutputDescriptor returns the descriptor of the named output
	// tensor, same caveat as InputDescriptor.
	OutputDescriptor(name string) (tensor.Descriptor, error)
	// ReshapeBatch fixes the batch dimension of every input/output
	// descriptor to n. Must be called at most once, before the first
	// Execute* call.
	ReshapeBatch(n int) error
	// SupportsAsync reports whether ExecuteAsync is implemented; only
	// OpenVINO does (spec.md §4.4). Callers must fall back to
	// ExecuteSync when this is false.
	SupportsAsync() bool
	// ExecuteSync runs input through the model and returns the output
	// tensor, blocking the calling goroutine.
	ExecuteSync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string) (tensor.Descriptor, error)
	// ExecuteAsync dispatches input and returns immediately; cb fires
	// exactly once on a worker goroutine once the result (or an error)
	// is ready. Returns an error immediately if dispatch itself fails
	// (spec.md §4.6, "Failure handling"); in that case cb is never
	// called.
	ExecuteAsync(ctx context.Context, inputName string, input tensor.Descriptor, outputName string, cb AsyncCallback) error
	// Close releases backend resources. Idempotent.
	Close() error
}

// Backend loads model files into Model handles for one Variant.
type Backend interface {
	Variant() Variant
	Load(ctx context.Context, modelPath string, options string) (Model, error)
}

// New returns the Backend implementation for variant.
func New(variant Variant) (Backend, error) {
	switch variant {
	case Native:
		return newNative(), nil
	case TensorFlow:
		return newTensorFlow(), nil
	case OpenVINO:
		return newOpenVINO(), nil
	default:
		return nil, fmt.Errorf("unknown backend variant %v", variant)
	}
}
