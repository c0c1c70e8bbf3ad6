// transcode.go implements the frame <-> tensor conversions of spec.md
// §4.3: pixel-format-specific preproc (frame plane -> tensor slot) and
// postproc (tensor slot -> frame plane), plus the config-time
// validation of a pixel format against a model's input descriptor.
package transcode

import (
	"fmt"

	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/tensor"
)

// Transcoder converts frame.Frame values to/from tensor.Descriptor
// batch slots for one (pixel format, model input/output descriptor)
// pairing, validated once at construction (spec.md §4.3, "The
// transcoder validates each frame at config time...").
type Transcoder struct {
	PixelFormat frame.PixelFormat
	InputType   tensor.ElementType
	OutputType  tensor.ElementType
}

// New validates pf against modelInput (channel count and element-type
// compatibility) and returns a ready Transcoder, or a config error
// otherwise. Frame height/width are not checked here; ValidateDims
// checks them per frame.
func New(pf frame.PixelFormat, modelInput, modelOutput tensor.Descriptor) (*Transcoder, error) {
	if !pf.IsSupported() {
		return nil, fmt.Errorf("pixel format %s is not in the supported set", pf)
	}
	if pf.Channels() != modelInput.Shape.Channels() {
		return nil, fmt.Errorf("pixel format %s has %d channel(s), model input declares %d",
			pf, pf.Channels(), modelInput.Shape.Channels())
	}
	if err := checkElementType(pf, modelInput.ElementType); err != nil {
		return nil, err
	}
	t := &Transcoder{PixelFormat: pf, InputType: modelInput.ElementType, OutputType: modelOutput.ElementType}
	return t, nil
}

// checkElementType applies the table in spec.md §4.3: RGB24/BGR24
// accept either FLOAT32 (widened) or UINT8 (memcpy'd); GRAY8 requires
// UINT8; GRAYF32 requires FLOAT32; planar YUV requires FLOAT32 (only Y
// participates).
func checkElementType(pf frame.PixelFormat, et tensor.ElementType) error {
	switch pf {
	case frame.RGB24, frame.BGR24:
		return nil
	case frame.GRAY8:
		if et != tensor.UInt8 {
			return fmt.Errorf("%s requires a UINT8 model input, got %s", pf, et)
		}
	case frame.GRAYF32:
		if et != tensor.Float32 {
			return fmt.Errorf("%s requires a FLOAT32 model input, got %s", pf, et)
		}
	default:
		if pf.IsPlanarYUV() && et != tensor.Float32 {
			return fmt.Errorf("%s requires a FLOAT32 model input, got %s", pf, et)
		}
	}
	return nil
}

// ValidateDims checks the frame's width/height against the model's
// fixed dimensions, or accepts anything when the model declares them
// dynamic (-1), per spec.md §4.3.
func ValidateDims(fr *frame.Frame, modelInput tensor.Descriptor) error {
	if modelInput.Shape.Height() != -1 && modelInput.Shape.Height() != fr.Height {
		return fmt.Errorf("frame height %d does not match model input height %d", fr.Height, modelInput.Shape.Height())
	}
	if modelInput.Shape.Width() != -1 && modelInput.Shape.Width() != fr.Width {
		return fmt.Errorf("frame width %d does not match model input width %d", fr.Width, modelInput.Shape.Width())
	}
	return nil
}

// UVCarry holds a planar-YUV frame's chroma planes, carried around the
// model per spec.md §4.3, until Unpack reattaches them (verbatim or
// rescaled) to the output frame.
type UVCarry struct {
	u, v frame.Plane
	pf   frame.PixelFormat
	w, h int
}

// Pack writes one frame's model-input channels into batchIndex's slot
// of batch (a NHWC-layout tensor per tensor.ChannelLast), and returns
// the chroma carry for planar YUV formats (nil otherwise).
func (t *Transcoder) Pack(fr *frame.Frame, batch tensor.Descriptor, batchIndex int) (*UVCarry, error) {
	h, w, c := batch.Shape.Height(), batch.Shape.Width(), batch.Shape.Channels()
	if h != fr.Height || w != fr.Width {
		return nil, fmt.Errorf("frame %dx%d does not match batch slot %dx%d", fr.Width, fr.Height, w, h)
	}
	slot := batchSlot(batch, batchIndex)

	switch {
	case t.PixelFormat.IsPlanarYUV():
		packPlane(fr.Planes[0], slot, w, h, 1, false, t.InputType)
		return &UVCarry{u: clonePlane(fr.Planes[1]), v: clonePlane(fr.Planes[2]), pf: t.PixelFormat, w: fr.Width, h: fr.Height}, nil
	default:
		packPlane(fr.Planes[0], slot, w, h, c, t.PixelFormat.IsFloatNative(), t.InputType)
		return nil, nil
	}
}

// packPlane copies one plane into a tightly-packed NHWC tensor slot,
// honoring the source's row stride. When srcIsFloatNative (GRAYF32),
// the plane already holds packed float32 samples and is memcpy'd
// as-is; otherwise it holds 1-byte uint8 samples, either memcpy'd (et
// == UInt8) or widened to float32 per component (et == Float32) —
// spec.md §4.3's "widen uint8->float32 per component" / "plain memcpy
// per row honoring stride".
func packPlane(p frame.Plane, dst []byte, w, h, channels int, srcIsFloatNative bool, et tensor.ElementType) {
	samples := w * channels
	srcSampleSize := 1
	if srcIsFloatNative {
		srcSampleSize = 4
	}
	srcRowBytes := samples * srcSampleSize
	dstStride := samples * et.Size()
	for y := 0; y < h; y++ {
		srcRow := p.Data[y*p.Stride : y*p.Stride+srcRowBytes]
		dstRow := dst[y*dstStride : (y+1)*dstStride]
		switch {
		case srcIsFloatNative:
			copy(dstRow, srcRow)
		case et == tensor.UInt8:
			copy(dstRow, srcRow)
		default:
			for x := 0; x < samples; x++ {
				tensor.PutFloat32(dstRow, x*4, float32(srcRow[x]))
			}
		}
	}
}

func clonePlane(p frame.Plane) frame.Plane {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return frame.Plane{Data: data, Stride: p.Stride}
}

// batchSlot returns the byte range of batch's Data holding entry
// batchIndex, assuming NHWC packing (tensor.ChannelLast).
func batchSlot(batch tensor.Descriptor, batchIndex int) []byte {
	slotSize := batch.Shape.Channels() * batch.Shape.Height() * batch.Shape.Width() * batch.ElementType.Size()
	return batch.Data[batchIndex*slotSize : (batchIndex+1)*slotSize]
}

// Unpack reads batchIndex's slot out of the model's output tensor,
// builds an output frame in the same pixel format as src, and copies
// PTS/metadata from src (spec.md §4.3, "Post-inference"). For planar
// YUV formats, carry's chroma planes are copied verbatim if resolutions
// match, or bicubic-rescaled to the output resolution otherwise
// (spec.md §4.3).
func (t *Transcoder) Unpack(src *frame.Frame, batch tensor.Descriptor, batchIndex int, carry *UVCarry) (*frame.Frame, error) {
	outH, outW := batch.Shape.Height(), batch.Shape.Width()
	out := frame.New(t.PixelFormat, outW, outH)
	out.CopyPropsFrom(src)
	slot := batchSlot(batch, batchIndex)

	switch {
	case t.PixelFormat.IsPlanarYUV():
		unpackPlane(slot, out.Planes[0], outW, outH, 1, false, t.OutputType)
		if carry == nil {
			return nil, fmt.Errorf("planar YUV output requires a chroma carry")
		}
		if err := attachChroma(out, carry, outW, outH); err != nil {
			return nil, err
		}
	default:
		unpackPlane(slot, out.Planes[0], outW, outH, out.PixelFormat.Channels(), out.PixelFormat.IsFloatNative(), t.OutputType)
	}
	return out, nil
}

// unpackPlane is packPlane's inverse: narrows float32->uint8 with
// clamping to [0,255] when et is Float32 but the destination plane
// wants 1-byte uint8 samples; when dstIsFloatNative (GRAYF32) the
// float32 tensor bytes are memcpy'd straight into the plane, per
// spec.md §4.3.
func unpackPlane(src []byte, dst frame.Plane, w, h, channels int, dstIsFloatNative bool, et tensor.ElementType) {
	samples := w * channels
	dstSampleSize := 1
	if dstIsFloatNative {
		dstSampleSize = 4
	}
	dstRowBytes := samples * dstSampleSize
	srcStride := samples * et.Size()
	for y := 0; y < h; y++ {
		srcRow := src[y*srcStride : (y+1)*srcStride]
		dstRow := dst.Data[y*dst.Stride : y*dst.Stride+dstRowBytes]
		if dstIsFloatNative || et == tensor.UInt8 {
			copy(dstRow, srcRow)
			continue
		}
		for x := 0; x < samples; x++ {
			dstRow[x] = tensor.ClampToUint8(tensor.GetFloat32(srcRow, x*4))
		}
	}
}
