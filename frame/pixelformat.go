// pixelformat.go enumerates the pixel formats the stage edge accepts,
// per the supported-format table in the external-interfaces section of
// the specification.

package frame

import "fmt"

// PixelFormat is one of the formats negotiable at the stage edge.
// Any other format is rejected at negotiation (a ConfigError).
type PixelFormat int

const (
	RGB24 PixelFormat = iota
	BGR24
	GRAY8
	GRAYF32
	YUV420P
	YUV422P
	YUV444P
	YUV410P
	YUV411P
)

func (f PixelFormat) String() string {
	switch f {
	case RGB24:
		return "RGB24"
	case BGR24:
		return "BGR24"
	case GRAY8:
		return "GRAY8"
	case GRAYF32:
		return "GRAYF32"
	case YUV420P:
		return "YUV420P"
	case YUV422P:
		return "YUV422P"
	case YUV444P:
		return "YUV444P"
	case YUV410P:
		return "YUV410P"
	case YUV411P:
		return "YUV411P"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// SupportedPixelFormats lists every format accepted at the stage edge.
var SupportedPixelFormats = []PixelFormat{
	RGB24, BGR24, GRAY8, GRAYF32,
	YUV420P, YUV422P, YUV444P, YUV410P, YUV411P,
}

// IsSupported reports whether f is in SupportedPixelFormats.
func (f PixelFormat) IsSupported() bool {
	for _, s := range SupportedPixelFormats {
		if s == f {
			return true
		}
	}
	return false
}

// IsPlanarYUV reports whether f is one of the planar YUV formats, for
// which only the Y plane participates in inference and U/V are carried
// around the model (spec.md §4.3).
func (f PixelFormat) IsPlanarYUV() bool {
	switch f {
	case YUV420P, YUV422P, YUV444P, YUV410P, YUV411P:
		return true
	default:
		return false
	}
}

// IsFloatNative reports whether this format's own byte encoding is
// already packed 4-byte float32 samples (only GRAYF32) rather than
// 1-byte uint8 samples. The transcoder uses this to decide whether
// converting to/from a FLOAT32 tensor is a raw memcpy or a
// widen/narrow (spec.md §4.3).
func (f PixelFormat) IsFloatNative() bool {
	return f == GRAYF32
}

// Channels is the number of channels the model-input side must match:
// 3 for RGB24/BGR24, 1 for everything else (GRAY8/GRAYF32/planar YUV,
// where only the luma plane is fed to the model).
func (f PixelFormat) Channels() int {
	switch f {
	case RGB24, BGR24:
		return 3
	default:
		return 1
	}
}

// ChromaShift returns the (log2 width shift, log2 height shift) for the
// chroma planes of a planar YUV format, i.e. chroma_w = width >>
// shiftW, chroma_h = height >> shiftH (rounded up). Panics for
// non-planar-YUV formats.
func (f PixelFormat) ChromaShift() (shiftW, shiftH int) {
	switch f {
	case YUV444P:
		return 0, 0
	case YUV422P:
		return 1, 0
	case YUV420P:
		return 1, 1
	case YUV411P:
		return 2, 0
	case YUV410P:
		return 2, 2
	default:
		panic(fmt.Sprintf("%s is not a planar YUV format", f))
	}
}

// NumPlanes is the number of data planes a frame of this format carries.
func (f PixelFormat) NumPlanes() int {
	if f.IsPlanarYUV() {
		return 3
	}
	return 1
}

func ceilShift(v, shift int) int {
	return (v + (1 << shift) - 1) >> shift
}

// PlaneDimensions returns the (width, height) of plane index i (0 is
// always luma/the only plane for non-YUV formats) for a frame of size
// width x height in format f.
func (f PixelFormat) PlaneDimensions(width, height, plane int) (int, int) {
	if plane == 0 || !f.IsPlanarYUV() {
		return width, height
	}
	shiftW, shiftH := f.ChromaShift()
	return ceilShift(width, shiftW), ceilShift(height, shiftH)
}
