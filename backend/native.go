// native.go implements the NATIVE backend variant's shape/options
// plumbing shared between the with_cv and !with_cv builds (spec.md
// §4.4). The OpenCV DNN module (gocv) exposes running a graph, but not
// static shape introspection for arbitrary ONNX graphs, so the shapes a
// Model reports come from the options string rather than the model
// file, per DESIGN.md's resolution of that gap.
package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-dnnproc/dnnvf/tensor"
)

// nativeOptions is the parsed form of the NATIVE backend's options
// string: "input_shape=N,C,H,W;output_shape=N,C,H,W". Both are
// required — the backend contract needs both descriptors before the
// first Execute* call (spec.md §3, "Model handle").
type nativeOptions struct {
	inputShape  tensor.Shape
	outputShape tensor.Shape
	inputType   tensor.ElementType
	outputType  tensor.ElementType
}

func parseNativeOptions(options string) (nativeOptions, error) {
	out := nativeOptions{inputType: tensor.Float32, outputType: tensor.Float32}
	haveInput, haveOutput := false, false
	for _, kv := range strings.Split(options, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nativeOptions{}, fmt.Errorf("malformed native backend option %q", kv)
		}
		key, val := parts[0], parts[1]
		switch key {
		case "input_shape":
			shape, err := parseShape(val)
			if err != nil {
				return nativeOptions{}, fmt.Errorf("input_shape: %w", err)
			}
			out.inputShape = shape
			haveInput = true
		case "output_shape":
			shape, err := parseShape(val)
			if err != nil {
				return nativeOptions{}, fmt.Errorf("output_shape: %w", err)
			}
			out.outputShape = shape
			haveOutput = true
		case "input_type":
			out.inputType = elementTypeFromString(val)
		case "output_type":
			out.outputType = elementTypeFromString(val)
		}
	}
	if !haveInput || !haveOutput {
		return nativeOptions{}, fmt.Errorf("native backend requires both input_shape and output_shape options")
	}
	return out, nil
}

func parseShape(s string) (tensor.Shape, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tensor.Shape{}, fmt.Errorf("expected 4 comma-separated dimensions, got %q", s)
	}
	var shape tensor.Shape
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return tensor.Shape{}, fmt.Errorf("dimension %d: %w", i, err)
		}
		shape[i] = n
	}
	return shape, nil
}

func elementTypeFromString(s string) tensor.ElementType {
	if strings.EqualFold(s, "uint8") {
		return tensor.UInt8
	}
	return tensor.Float32
}
