// engine.go implements the inference engine (spec.md §4.6): the core
// orchestrator tying the bounded FIFO, ordered in-flight list,
// transcoder, backend, and request pool together behind
// submit/poll/flush/is_empty. Async mode batches through a request
// pool; sync mode (spec.md §4.6, "Sync mode") runs one inference per
// submit with no pool, sharing the same ordered in-flight list so a
// single DrainReady implementation serves both.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/go-dnnproc/dnnvf/dnnerror"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/inflight"
	"github.com/go-dnnproc/dnnvf/reqpool"
	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/go-dnnproc/dnnvf/transcode"
	"go.uber.org/atomic"
)

var errShutdown = errors.New("engine has been shut down")

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

// flushPollInterval is the short backoff Flush sleeps between polls
// while waiting for dispatched requests to complete (spec.md §5,
// "flush is the only call that deliberately waits ... a short sleep
// (~5ms) between polls").
const flushPollInterval = 5 * time.Millisecond

// Config configures one Engine instance, corresponding to one filter
// stage's worth of stage options (spec.md §6).
type Config struct {
	Model      backend.Model
	Transcoder *transcode.Transcoder
	InputName  string
	OutputName string
	InputDesc  tensor.Descriptor

	// Async selects async/pooled mode (stage option `async`); when
	// false, or when the model does not support execute_async, the
	// engine falls back to sync mode (spec.md §4.4/§4.6).
	Async     bool
	NIReq     int
	BatchSize int
}

// Engine is the core orchestrator (spec.md §4.6). All exported methods
// are safe to call from the filter thread. Poll never blocks; Submit
// blocks for the duration of execute_sync in sync mode, and in async
// mode only while every request slot is dispatched. ProbeOutputShape is
// a separate function, run before construction.
type Engine struct {
	model      backend.Model
	transcoder *transcode.Transcoder
	inputName  string
	outputName string
	inputDesc  tensor.Descriptor

	async bool
	pool  *reqpool.Pool
	list  *inflight.List

	// pending buffers entries DrainReady already popped from list but
	// that a single Poll call hasn't returned yet, so later Poll calls
	// still see them in submission order. Only ever touched from the
	// filter thread (spec.md §4.6, Poll's caller), so it needs no lock
	// of its own.
	pending []*inflight.Entry

	shutdown atomic.Bool
}

// New validates cfg and constructs an Engine. Async is silently
// downgraded to sync when the model does not support execute_async
// (spec.md §4.4: "the core falls back to sync if async is unavailable").
func New(cfg Config) (*Engine, error) {
	if cfg.Model == nil {
		return nil, dnnerror.ConfigError{Err: errRequired("Model")}
	}
	if cfg.Transcoder == nil {
		return nil, dnnerror.ConfigError{Err: errRequired("Transcoder")}
	}

	e := &Engine{
		model:      cfg.Model,
		transcoder: cfg.Transcoder,
		inputName:  cfg.InputName,
		outputName: cfg.OutputName,
		inputDesc:  cfg.InputDesc,
		list:       inflight.New(),
	}

	e.async = cfg.Async && cfg.Model.SupportsAsync()
	if e.async {
		pool, err := reqpool.New(cfg.Model, cfg.Transcoder, e.list, cfg.InputName, cfg.OutputName, cfg.InputDesc, cfg.NIReq, cfg.BatchSize)
		if err != nil {
			return nil, dnnerror.ConfigError{Err: err}
		}
		e.pool = pool
	}
	return e, nil
}

// IsAsync reports whether the engine ended up in async (pooled) mode.
func (e *Engine) IsAsync() bool { return e.async }

// InputDescriptor exposes the model input descriptor the engine was
// configured with, for callers that need to size frames to match it.
func (e *Engine) InputDescriptor() tensor.Descriptor { return e.inputDesc }

// Submit preprocesses fr and hands it to the backend (async: packed into
// the request pool; sync: run through execute_sync immediately). In
// async mode it returns once the frame is packed (or its slot
// dispatched), waiting only when every slot is dispatched; in sync mode
// it returns after execute_sync and postproc have finished.
func (e *Engine) Submit(ctx context.Context, fr *frame.Frame) error {
	if e.shutdown.Load() {
		return dnnerror.ShutdownError{Err: errShutdown}
	}
	if err := transcode.ValidateDims(fr, e.inputDesc); err != nil {
		return dnnerror.ConfigError{Err: err}
	}

	if e.async {
		return e.pool.Submit(ctx, fr, &inflight.Entry{})
	}
	return e.submitSync(ctx, fr)
}

// submitSync implements spec.md §4.6's sync-mode path: preproc, execute
// synchronously, postproc, and append the (already-done) entry to the
// same ordered in-flight list Poll drains — sync mode's
// "processed_frames" queue and async mode's "processing_frames" list
// are the same data structure here, sharing its mutex by construction.
func (e *Engine) submitSync(ctx context.Context, fr *frame.Frame) error {
	batch := tensor.NewDescriptor(e.inputDesc.ElementType, withBatch(e.inputDesc.Shape, 1), tensor.ChannelLast)
	carry, err := e.transcoder.Pack(fr, batch, 0)
	if err != nil {
		return dnnerror.ConfigError{Err: err}
	}

	entry := &inflight.Entry{Input: fr, Carry: carry}
	e.list.Append(ctx, entry)

	output, err := e.model.ExecuteSync(ctx, e.inputName, batch, e.outputName)
	if err != nil {
		execErr := dnnerror.BackendExecutionError{Err: err}
		e.list.MarkDone(ctx, entry, nil, execErr)
		return execErr
	}
	outFrame, err := e.transcoder.Unpack(fr, output, 0, carry)
	if err != nil {
		execErr := dnnerror.BackendExecutionError{Err: err}
		e.list.MarkDone(ctx, entry, nil, execErr)
		return execErr
	}
	e.list.MarkDone(ctx, entry, outFrame, nil)
	return nil
}

// drainPending moves every currently-ready entry from the head of the
// ordered list into e.pending. This is the only thing that ever removes
// entries from the list, so both Poll and Flush must call it — a
// completion callback (reqpool.Pool.completionCallback) only calls
// MarkDone, it never touches the list's underlying container/list.List.
func (e *Engine) drainPending(ctx context.Context) {
	ready := e.list.DrainReady(ctx)
	if len(ready) > 0 {
		e.pending = append(e.pending, ready...)
	}
}

// Poll drains ready entries from the head of the ordered list and
// returns the first one's output frame plus the input frame it was
// produced from. It returns (nil, nil, false, nil) promptly ("empty")
// if the head is not done yet, and (nil, in, true, err) for an entry
// whose backend execution failed (spec.md §4.6/§7 — "poll surfaces the
// null and the adapter drops the frame"); in is the failing entry's
// input frame, still attached to it (spec.md §7's "frame PTS (if
// known)" is always known here), so callers can log it.
func (e *Engine) Poll(ctx context.Context) (out *frame.Frame, in *frame.Frame, ok bool, err error) {
	if len(e.pending) == 0 {
		e.drainPending(ctx)
		if len(e.pending) == 0 {
			return nil, nil, false, nil
		}
	}
	head := e.pending[0]
	e.pending = e.pending[1:]
	return head.Output, head.Input, true, head.Err
}

// Flush dispatches the head slot even if partially filled (async mode
// only — sync mode has nothing left pending once Submit returns), then
// spin-waits with a short backoff, draining the ordered list on every
// iteration, until it is empty (spec.md §4.6, "keeps polling ... until
// the ordered list is empty"). Idempotent: calling it with nothing in
// flight returns immediately. Entries drained this way are buffered in
// e.pending for a later Poll to return, exactly like entries Poll
// itself would have drained.
func (e *Engine) Flush(ctx context.Context) error {
	if e.async {
		if err := e.pool.FlushHead(ctx); err != nil {
			return err
		}
	}
	for !e.list.IsEmpty(ctx) {
		e.drainPending(ctx)
		if e.list.IsEmpty(ctx) {
			break
		}
		time.Sleep(flushPollInterval)
	}
	e.drainPending(ctx)
	return nil
}

// IsEmpty reports whether the ordered in-flight list has drained and no
// polled-but-unclaimed entries remain buffered (spec.md §4.6).
func (e *Engine) IsEmpty(ctx context.Context) bool {
	return len(e.pending) == 0 && e.list.IsEmpty(ctx)
}

// Close marks the engine as torn down; subsequent Submit calls return
// ShutdownError (spec.md §7).
func (e *Engine) Close(ctx context.Context) error {
	e.shutdown.Store(true)
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

func withBatch(shape tensor.Shape, n int) tensor.Shape {
	shape[0] = n
	return shape
}

// ProbeOutputShape runs one throwaway synchronous inference against a
// zero-filled input of inputDesc's shape to learn the model's actual
// output resolution before the stage wires up its UV rescaler
// (SPEC_FULL.md "Supplemented from original_source", following
// vf_dnn_processing3.c's config_output "try-run" behavior — models may
// resize, and the declared output descriptor can be dynamic).
func ProbeOutputShape(ctx context.Context, model backend.Model, inputName string, inputDesc tensor.Descriptor, outputName string) (tensor.Descriptor, error) {
	probe := tensor.NewDescriptor(inputDesc.ElementType, withBatch(inputDesc.Shape, 1), tensor.ChannelLast)
	out, err := model.ExecuteSync(ctx, inputName, probe, outputName)
	if err != nil {
		return tensor.Descriptor{}, dnnerror.BackendExecutionError{Err: err}
	}
	return out, nil
}
