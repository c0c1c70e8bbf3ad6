// options.go binds the stage options table (spec.md §6) to a pflag
// flag set, in the style of cmd/streamforward's pflag.Var/pflag.String
// bindings (SPEC_FULL.md's ambient-stack section).
package stage

import (
	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/spf13/pflag"
)

// Options holds the seven stage options enumerated in spec.md §6, plus
// BackendOptions carrying the "options string" the backend contract
// (spec.md §6, "Backend contract (to plugins)") says accompanies the
// model path — shape/element-type metadata for NATIVE/TENSORFLOW/
// OPENVINO (backend.parseNativeOptions).
type Options struct {
	Backend        backend.Variant
	Model          string
	BackendOptions string
	Input          string
	Output         string
	Async          bool
	NIReq          int
	BatchSize      int
}

// DefaultOptions matches the defaults a filter stage would ship with:
// sync mode, one request slot, one frame per batch.
func DefaultOptions() Options {
	return Options{
		Backend:   backend.Native,
		NIReq:     1,
		BatchSize: 1,
	}
}

// backendValue adapts backend.Variant to pflag.Value so `dnn_backend`
// can be bound with pflag.Var like streamforward binds its log-level.
type backendValue struct {
	v *backend.Variant
}

func (b backendValue) String() string {
	if b.v == nil {
		return ""
	}
	return b.v.String()
}

func (b backendValue) Set(s string) error {
	variant, err := backend.ParseVariant(s)
	if err != nil {
		return err
	}
	*b.v = variant
	return nil
}

func (b backendValue) Type() string { return "backend" }

// NewFlagSet returns a pflag.FlagSet bound to opts's fields, one flag
// per stage option in the spec.md §6 table.
func NewFlagSet(name string, opts *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Var(backendValue{&opts.Backend}, "dnn_backend", "backend variant: native, tensorflow, or openvino")
	fs.StringVar(&opts.Model, "model", opts.Model, "filesystem path to the model file")
	fs.StringVar(&opts.BackendOptions, "backend_options", opts.BackendOptions, "backend-specific options string (e.g. input_shape=N,C,H,W;output_shape=N,C,H,W for NATIVE/TENSORFLOW/OPENVINO)")
	fs.StringVar(&opts.Input, "input", opts.Input, "name of the model's input tensor")
	fs.StringVar(&opts.Output, "output", opts.Output, "name of the model's output tensor")
	fs.BoolVar(&opts.Async, "async", opts.Async, "0 for sync mode, 1 for async mode with a request pool")
	fs.IntVar(&opts.NIReq, "nireq", opts.NIReq, "number of request slots in the pool, range 1-128")
	fs.IntVar(&opts.BatchSize, "batch_size", opts.BatchSize, "frames per inference request, range 1-1000")
	return fs
}

// Validate checks that model, input and output are set and, in async
// mode, applies the nireq/batch_size range checks (the same ones
// reqpool.New repeats), so a config error surfaces before any model
// load is attempted.
func (o Options) Validate() error {
	if o.Model == "" {
		return errRequired("model")
	}
	if o.Input == "" {
		return errRequired("input")
	}
	if o.Output == "" {
		return errRequired("output")
	}
	if o.Async {
		if o.NIReq < 1 || o.NIReq > 128 {
			return errRange("nireq", 1, 128)
		}
		if o.BatchSize < 1 || o.BatchSize > 1000 {
			return errRange("batch_size", 1, 1000)
		}
	}
	return nil
}
