// uv.go attaches a planar-YUV frame's carried chroma planes to the
// output frame: copied verbatim when input and output resolutions
// match, or bicubic-rescaled otherwise (spec.md §4.3), using
// bild/transform the way the teacher's kernel/imageprocessor.GaussianBlur
// reaches for anthonynsimon/bild for pixel math.
package transcode

import (
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/go-dnnproc/dnnvf/frame"
)

func attachChroma(out *frame.Frame, carry *UVCarry, outLumaW, outLumaH int) error {
	shiftW, shiftH := out.PixelFormat.ChromaShift()
	inChromaW, inChromaH := ceilShift(carry.w, shiftW), ceilShift(carry.h, shiftH)
	outChromaW, outChromaH := ceilShift(outLumaW, shiftW), ceilShift(outLumaH, shiftH)

	if inChromaW == outChromaW && inChromaH == outChromaH {
		copyPlaneRows(carry.u, out.Planes[1], outChromaW, outChromaH)
		copyPlaneRows(carry.v, out.Planes[2], outChromaW, outChromaH)
		return nil
	}

	rescalePlane(carry.u, inChromaW, inChromaH, out.Planes[1], outChromaW, outChromaH)
	rescalePlane(carry.v, inChromaW, inChromaH, out.Planes[2], outChromaW, outChromaH)
	return nil
}

func ceilShift(v, shift int) int {
	return (v + (1 << shift) - 1) >> shift
}

// copyPlaneRows copies one w x h single-channel plane row-by-row,
// honoring src's and dst's own strides, like packPlane/unpackPlane do —
// a flat copy(dst.Data, src.Data) is only correct when both sides are
// tightly packed (frame.Plane's Stride may exceed w to account for
// padding, per frame.Plane's doc comment).
func copyPlaneRows(src frame.Plane, dst frame.Plane, w, h int) {
	for y := 0; y < h; y++ {
		copy(dst.Data[y*dst.Stride:y*dst.Stride+w], src.Data[y*src.Stride:y*src.Stride+w])
	}
}

// rescalePlane resizes one single-channel chroma plane with a
// Catmull-Rom (bicubic) filter, standing in for the "planar-rescale"
// black-box service spec.md §1 excludes from the core's scope.
func rescalePlane(src frame.Plane, srcW, srcH int, dst frame.Plane, dstW, dstH int) {
	gray := image.NewGray(image.Rect(0, 0, srcW, srcH))
	for y := 0; y < srcH; y++ {
		copy(gray.Pix[y*gray.Stride:y*gray.Stride+srcW], src.Data[y*src.Stride:y*src.Stride+srcW])
	}

	resized := transform.Resize(gray, dstW, dstH, transform.CatmullRom)

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			r, _, _, _ := resized.At(x, y).RGBA()
			dst.Data[y*dst.Stride+x] = byte(r >> 8)
		}
	}
}
