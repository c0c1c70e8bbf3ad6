// adapter.go implements the filter stage adapter (spec.md §6, C7 in
// SPEC_FULL.md's package-mapping table): the pipeline-facing edge that
// owns the backend model handle, the engine, and the per-stage
// error-logging policy (spec.md §7). Grounded on the teacher's
// kernel.Filter (kernel/filter.go) for the submit/poll shape of a
// stage's pipeline-facing surface, generalized from packet/frame
// filtering to DNN inference.
package stage

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/pkg/field"
	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/go-dnnproc/dnnvf/dnnerror"
	"github.com/go-dnnproc/dnnvf/engine"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/logger"
	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/go-dnnproc/dnnvf/transcode"
	"go.uber.org/atomic"
)

// Adapter is one filter stage instance: a loaded backend model, its
// engine, and the pixel format negotiated at the stage edge (spec.md
// §6, "Supported pixel formats at the edge").
type Adapter struct {
	name        string
	backend     backend.Backend
	model       backend.Model
	engine      *engine.Engine
	pixelFormat frame.PixelFormat

	alreadyFlushed atomic.Bool
}

// New loads opts.Model through opts.Backend, negotiates pf against the
// supported set, probes the model's real output shape (SPEC_FULL.md
// "Supplemented from original_source", config_output's try-run
// behavior), and wires a transcoder + engine for it.
func New(ctx context.Context, name string, pf frame.PixelFormat, opts Options) (*Adapter, error) {
	if err := opts.Validate(); err != nil {
		return nil, dnnerror.ConfigError{Err: err}
	}
	if !pf.IsSupported() {
		return nil, dnnerror.ConfigError{Err: fmt.Errorf("pixel format %s is not in the supported set", pf)}
	}

	b, err := backend.New(opts.Backend)
	if err != nil {
		return nil, dnnerror.ConfigError{Err: err}
	}
	model, err := b.Load(ctx, opts.Model, opts.BackendOptions)
	if err != nil {
		return nil, dnnerror.BackendLoadError{Err: err}
	}

	inputDesc, err := model.InputDescriptor(opts.Input)
	if err != nil {
		model.Close()
		return nil, dnnerror.BackendLoadError{Err: fmt.Errorf("input %q: %w", opts.Input, err)}
	}
	if opts.Async {
		if err := model.ReshapeBatch(opts.BatchSize); err != nil {
			model.Close()
			return nil, dnnerror.BackendLoadError{Err: err}
		}
	}

	outputDesc, err := engine.ProbeOutputShape(ctx, model, opts.Input, inputDesc, opts.Output)
	if err != nil {
		model.Close()
		return nil, err
	}

	tc, err := transcode.New(pf, inputDesc, outputDesc)
	if err != nil {
		model.Close()
		return nil, dnnerror.ConfigError{Err: err}
	}

	eng, err := engine.New(engine.Config{
		Model:      model,
		Transcoder: tc,
		InputName:  opts.Input,
		OutputName: opts.Output,
		InputDesc:  inputDesc,
		Async:      opts.Async,
		NIReq:      opts.NIReq,
		BatchSize:  opts.BatchSize,
	})
	if err != nil {
		model.Close()
		return nil, err
	}

	return &Adapter{
		name:        name,
		backend:     b,
		model:       model,
		engine:      eng,
		pixelFormat: pf,
	}, nil
}

// Submit takes ownership of fr and hands it to the engine (spec.md §6,
// "submit(frame): consumer takes ownership of the input frame
// reference").
func (a *Adapter) Submit(ctx context.Context, fr *frame.Frame) error {
	if fr.PixelFormat != a.pixelFormat {
		return dnnerror.ConfigError{Err: fmt.Errorf("frame pixel format %s does not match negotiated %s", fr.PixelFormat, a.pixelFormat)}
	}
	return a.engine.Submit(ctx, fr)
}

// Poll returns the next produced frame in submission order, or
// (nil, false) if none is ready yet. A per-frame BackendExecutionError
// is logged (spec.md §7, "a single error log line ... stage name, frame
// PTS ..., the kind; no stack traces") and the frame is dropped rather
// than surfaced, so Poll's caller never terminates the stream over a
// single failed inference (spec.md §7, "does not terminate the
// stream").
func (a *Adapter) Poll(ctx context.Context) (*frame.Frame, bool) {
	for {
		out, in, ok, err := a.engine.Poll(ctx)
		if !ok {
			return nil, false
		}
		if err != nil {
			a.logDrop(ctx, in, err)
			continue
		}
		return out, true
	}
}

// logDrop emits the single-line error log spec.md §7 requires. in is
// the failing entry's input frame, still attached at the engine
// boundary; its PTS is used when in is non-nil, -1 otherwise.
func (a *Adapter) logDrop(ctx context.Context, in *frame.Frame, err error) {
	kind, _ := dnnerror.KindOf(err)
	pts := int64(-1)
	if in != nil {
		pts = in.PTS
	}
	logger.ErrorFields(ctx, "dropping frame after backend failure", field.Fields{
		{Key: "stage", Value: a.name},
		{Key: "pts", Value: pts},
		{Key: "kind", Value: string(kind)},
	})
}

// SignalEndOfStream flushes the engine, drains every remaining frame
// (forwarding each to fn in submission order), and returns the pts to
// attach to the downstream end-of-stream marker: the last drained
// frame's pts, or lastPTS if nothing was drained (SPEC_FULL.md
// "Supplemented from original_source", vf_dnn_processing3.c's
// flush_frame EOS-timestamp fallback). At-most-once: a second call is a
// no-op that returns lastPTS unchanged (SPEC_FULL.md's already_flushed
// guard).
func (a *Adapter) SignalEndOfStream(ctx context.Context, lastPTS int64, fn func(*frame.Frame)) (int64, error) {
	if !a.alreadyFlushed.CompareAndSwap(false, true) {
		return lastPTS, nil
	}
	if err := a.engine.Flush(ctx); err != nil {
		return 0, dnnerror.ResourceError{Err: err}
	}

	eosPTS := lastPTS
	for {
		out, ok := a.Poll(ctx)
		if !ok {
			break
		}
		eosPTS = out.PTS
		if fn != nil {
			fn(out)
		}
	}
	return eosPTS, nil
}

// InputDescriptor exposes the negotiated model input shape, mainly for
// callers that need to size synthetic frames (e.g. cmd/dnnfilterctl).
func (a *Adapter) InputDescriptor() tensor.Descriptor {
	return a.engine.InputDescriptor()
}

// Close tears the stage down: engine first (marks Submit calls as
// ShutdownError), then the backend model handle.
func (a *Adapter) Close(ctx context.Context) error {
	return a.engine.Close(ctx)
}
