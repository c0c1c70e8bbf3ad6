// pool.go implements the request pool & batcher (spec.md §4.5): a fixed
// number of request slots, each accumulating up to batch_size packed
// entries before dispatch, cycling FREE -> FILLING -> DISPATCHED ->
// COMPLETING -> FREE through the bounded FIFO (queue.FIFO) and the
// ordered in-flight list (inflight.List).
package reqpool

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/pkg/field"
	"github.com/go-dnnproc/dnnvf/backend"
	"github.com/go-dnnproc/dnnvf/dnnerror"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/inflight"
	"github.com/go-dnnproc/dnnvf/logger"
	"github.com/go-dnnproc/dnnvf/queue"
	"github.com/go-dnnproc/dnnvf/tensor"
	"github.com/go-dnnproc/dnnvf/transcode"
	"github.com/xaionaro-go/xsync"
)

// Slot is one request-pool slot (spec.md §3, "Request slot"): a backend
// input batch tensor plus up to BatchSize in-flight entries currently
// packed into it. FREE/FILLING slots live in the pool's FIFO; a
// DISPATCHED slot is held exclusively by the backend until its
// completion callback fires.
type Slot struct {
	input   tensor.Descriptor
	entries []*inflight.Entry
	count   int
	ctx     context.Context
}

// Pool owns NIReq slots, the bounded FIFO they cycle through, and the
// ordered in-flight list their entries are tracked in.
type Pool struct {
	model       backend.Model
	transcoder  *transcode.Transcoder
	inputName   string
	outputName  string
	batchSize   int
	nireq       int
	fifo        *queue.FIFO[Slot]
	list        *inflight.List
	callbackMu  xsync.Mutex
	slots       []*Slot
}

// New allocates nireq slots, each sized for batchSize packed entries
// against inputDesc's shape (batch dimension forced to batchSize), and
// pushes them all to the FIFO as FREE (spec.md §4.5, initial state).
func New(
	model backend.Model,
	transcoder *transcode.Transcoder,
	list *inflight.List,
	inputName, outputName string,
	inputDesc tensor.Descriptor,
	nireq, batchSize int,
) (*Pool, error) {
	if nireq < 1 || nireq > 128 {
		return nil, fmt.Errorf("nireq must be in [1,128], got %d", nireq)
	}
	if batchSize < 1 || batchSize > 1000 {
		return nil, fmt.Errorf("batch_size must be in [1,1000], got %d", batchSize)
	}

	p := &Pool{
		model:      model,
		transcoder: transcoder,
		inputName:  inputName,
		outputName: outputName,
		batchSize:  batchSize,
		nireq:      nireq,
		fifo:       queue.New[Slot](nireq),
		list:       list,
	}

	batchShape := inputDesc.Shape
	batchShape[0] = batchSize
	for i := 0; i < nireq; i++ {
		slot := &Slot{
			input:   tensor.NewDescriptor(inputDesc.ElementType, batchShape, tensor.ChannelLast),
			entries: make([]*inflight.Entry, 0, batchSize),
		}
		p.slots = append(p.slots, slot)
		p.fifo.Push(slot)
	}
	return p, nil
}

// Submit packs fr into the head slot's next free batch position,
// appends entry to the ordered list, and dispatches the slot to the
// backend once it fills (spec.md §4.6). Blocks only when every slot is
// currently DISPATCHED (spec.md §9's open question is resolved in favor
// of `nireq * batch_size` total concurrent capacity — see DESIGN.md);
// otherwise it returns as soon as preproc and bookkeeping are done.
func (p *Pool) Submit(ctx context.Context, fr *frame.Frame, entry *inflight.Entry) error {
	slot := p.fifo.Pop()
	slot.ctx = ctx

	carry, err := p.transcoder.Pack(fr, slot.input, slot.count)
	if err != nil {
		p.fifo.PushFront(slot)
		return dnnerror.ConfigError{Err: err}
	}
	entry.Carry = carry
	entry.Input = fr
	slot.entries = append(slot.entries, entry)
	slot.count++
	p.list.Append(ctx, entry)

	if slot.count < p.batchSize {
		p.fifo.PushFront(slot)
		return nil
	}
	return p.dispatch(ctx, slot)
}

// FlushHead dispatches the current head slot even if it is only
// partially filled (spec.md §4.5, "FILLING --flush()--> DISPATCHED").
// A no-op if the head slot is FREE (count == 0, i.e. nothing to flush).
func (p *Pool) FlushHead(ctx context.Context) error {
	slot, ok := p.fifo.TryPop()
	if !ok {
		return nil
	}
	if slot.count == 0 {
		p.fifo.Push(slot)
		return nil
	}
	slot.ctx = ctx
	return p.dispatch(ctx, slot)
}

// dispatch calls execute_async on slot (spec.md §4.5, FILLING/full ->
// DISPATCHED). On a dispatch-time error, the slot is returned to the
// pool immediately and every packed entry is marked done with a null
// output (spec.md §4.6, "Failure handling").
func (p *Pool) dispatch(ctx context.Context, slot *Slot) error {
	err := p.model.ExecuteAsync(ctx, p.inputName, slot.input, p.outputName, p.completionCallback(slot))
	if err != nil {
		execErr := dnnerror.BackendExecutionError{Err: err}
		logger.ErrorFields(ctx, "dnn backend dispatch failed", field.Map[field.Value]{"kind": execErr.Kind()})
		for _, e := range slot.entries {
			p.list.MarkDone(ctx, e, nil, execErr)
		}
		p.resetAndFree(slot)
		return execErr
	}
	return nil
}

// completionCallback returns the reusable trampoline (spec.md §3,
// "Request slot" — "reusable completion-callback trampoline") that runs
// postproc for every packed entry, marks each done, and returns slot to
// the free pool. callback_mutex (spec.md §4.5/§5) serializes this
// against any concurrently-completing slot so postproc on one slot's
// entries never interleaves with another's.
func (p *Pool) completionCallback(slot *Slot) backend.AsyncCallback {
	return func(output tensor.Descriptor, err error) {
		ctx := slot.ctx
		xsync.DoR1(ctx, &p.callbackMu, func() error {
			if err != nil {
				execErr := dnnerror.BackendExecutionError{Err: err}
				logger.ErrorFields(ctx, "dnn backend execution failed", field.Map[field.Value]{"kind": execErr.Kind()})
				for _, e := range slot.entries {
					p.list.MarkDone(ctx, e, nil, execErr)
				}
				p.resetAndFree(slot)
				return nil
			}
			for i, e := range slot.entries {
				carry, _ := e.Carry.(*transcode.UVCarry)
				out, perr := p.transcoder.Unpack(e.Input, output, i, carry)
				if perr != nil {
					execErr := dnnerror.BackendExecutionError{Err: perr}
					logger.ErrorFields(ctx, "dnn postproc failed", field.Map[field.Value]{"kind": execErr.Kind()})
					p.list.MarkDone(ctx, e, nil, execErr)
					continue
				}
				p.list.MarkDone(ctx, e, out, nil)
			}
			p.resetAndFree(slot)
			return nil
		})
	}
}

func (p *Pool) resetAndFree(slot *Slot) {
	slot.entries = slot.entries[:0]
	slot.count = 0
	slot.ctx = nil
	p.fifo.Push(slot)
}

// FreeAndFillingCount returns how many slots currently sit in the FIFO
// (FREE or FILLING); DispatchedCount is nireq minus this, together
// satisfying spec.md §8's steady-state invariant free+filling+dispatched
// == nireq.
func (p *Pool) FreeAndFillingCount() int { return p.fifo.Size() }

// DispatchedCount returns how many slots the backend currently holds.
func (p *Pool) DispatchedCount() int { return p.nireq - p.fifo.Size() }

// NIReq returns the pool's configured slot count.
func (p *Pool) NIReq() int { return p.nireq }

// BatchSize returns the pool's configured batch size.
func (p *Pool) BatchSize() int { return p.batchSize }
