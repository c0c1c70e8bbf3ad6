// openvino.go implements the OPENVINO backend variant, the only variant
// the core allows to run execute_async (spec.md §4.4).
package backend

import "context"

type openVINOBackend struct{}

func newOpenVINO() Backend { return openVINOBackend{} }

func (openVINOBackend) Variant() Variant { return OpenVINO }

func (openVINOBackend) Load(ctx context.Context, modelPath string, options string) (Model, error) {
	return newReferenceModel(options, true)
}
