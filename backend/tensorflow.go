// tensorflow.go implements the TENSORFLOW backend variant. It is
// sync-only per spec.md §4.4 ("only OPENVINO supports execute_async").
package backend

import "context"

type tensorFlowBackend struct{}

func newTensorFlow() Backend { return tensorFlowBackend{} }

func (tensorFlowBackend) Variant() Variant { return TensorFlow }

func (tensorFlowBackend) Load(ctx context.Context, modelPath string, options string) (Model, error) {
	return newReferenceModel(options, false)
}
