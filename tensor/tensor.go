// tensor.go defines the tensor descriptor the core exchanges with a
// backend: element type, logical shape, a raw data buffer, and the
// layout convention of that buffer.

// Package tensor provides the fixed four-field tensor descriptor record
// used to feed and drain a DNN backend.
package tensor

import "fmt"

// ElementType is the scalar type of every element in a Descriptor's Data.
type ElementType int

const (
	// Float32 stores each element as a 4-byte IEEE-754 float.
	Float32 ElementType = iota
	// UInt8 stores each element as a single byte.
	UInt8
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "FLOAT32"
	case UInt8:
		return "UINT8"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// Size returns the size in bytes of one element.
func (t ElementType) Size() int {
	switch t {
	case Float32:
		return 4
	case UInt8:
		return 1
	default:
		panic(fmt.Sprintf("unknown element type %d", int(t)))
	}
}

// Layout distinguishes channel-first (NCHW) from channel-last (NHWC)
// tensor buffers. The core always produces Data in ChannelLast order
// (see Descriptor doc); a backend that natively wants NCHW is expected
// to reinterpret it.
type Layout int

const (
	// ChannelLast is the layout the core always writes into Data: the
	// logical order (batch, channels, height, width) is the shape the
	// backend is told about, but bytes are laid out NHWC.
	ChannelLast Layout = iota
	// ChannelFirst is NCHW byte order.
	ChannelFirst
)

func (l Layout) String() string {
	switch l {
	case ChannelLast:
		return "NHWC"
	case ChannelFirst:
		return "NCHW"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Shape is the logical (batch, channels, height, width) extent of a
// tensor. A dimension of -1 means "dynamic" (the model did not fix it).
type Shape [4]int

func (s Shape) Batch() int    { return s[0] }
func (s Shape) Channels() int { return s[1] }
func (s Shape) Height() int   { return s[2] }
func (s Shape) Width() int    { return s[3] }

// IsDynamic reports whether height or width is unfixed (-1), matching
// the model's "-1" convention for a dimension it does not pin down.
func (s Shape) IsDynamic() bool {
	return s.Height() == -1 || s.Width() == -1
}

// Elements returns the element count implied by Shape, treating a
// dynamic dimension as 0 (the descriptor cannot be sized until the
// backend resolves it).
func (s Shape) Elements() int {
	if s.IsDynamic() {
		return 0
	}
	n := 1
	for _, d := range s {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// Descriptor is the fixed four-field tensor record exchanged between
// the transcoder and a backend: element type, logical shape, a raw
// buffer, and a layout flag.
type Descriptor struct {
	ElementType ElementType
	Shape       Shape
	Data        []byte
	Layout      Layout
}

// NewDescriptor allocates Data sized for Shape/ElementType and returns
// the descriptor. It panics if Shape is dynamic, mirroring the backend
// contract that batching/model-load must have resolved the shape by
// the time a concrete buffer is needed.
func NewDescriptor(et ElementType, shape Shape, layout Layout) Descriptor {
	n := shape.Elements()
	if n == 0 {
		panic(fmt.Sprintf("cannot allocate a descriptor for dynamic/empty shape %v", shape))
	}
	return Descriptor{
		ElementType: et,
		Shape:       shape,
		Data:        make([]byte, n*et.Size()),
		Layout:      layout,
	}
}

// RowStride returns the byte stride of one row with all channels
// interleaved, assuming ChannelLast packing for the inner (channel)
// dimension, which is how the core always writes Data (see Layout doc).
func (d Descriptor) RowStride() int {
	return d.Shape.Width() * d.Shape.Channels() * d.ElementType.Size()
}
