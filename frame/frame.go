// frame.go defines the Frame type: an external picture object carrying
// pixel format, dimensions, per-plane byte data and strides, a
// presentation timestamp, and arbitrary side-band metadata to copy
// through — the external collaborator's representation the core is
// handed by submit() and returns from poll().

// Package frame provides the picture type exchanged at the stage edge
// and the pixel formats it may carry.
package frame

// Frame is an external picture object. Ownership passes from upstream
// to the core on Submit, and from the core to downstream on Poll
// (spec.md §3, "Lifecycle").
type Frame struct {
	PixelFormat PixelFormat
	Width       int
	Height      int

	// Planes holds one Plane per data plane (1 plane for RGB24/BGR24/GRAY8/
	// GRAYF32, 3 for planar YUV formats: Y, U, V).
	Planes []Plane

	PTS int64

	// Metadata is copied through from input frame to output frame
	// verbatim (spec.md §3, Frame).
	Metadata map[string]any
}

// Plane is one contiguous data plane plus its row stride in bytes.
// Stride may exceed the tight per-row byte width to account for
// padding, exactly like the teacher's linesize convention.
type Plane struct {
	Data   []byte
	Stride int
}

// BytesPerRow is the tight (unpadded) byte width of one row of plane i.
func (fr *Frame) BytesPerRow(plane int) int {
	w, _ := fr.PixelFormat.PlaneDimensions(fr.Width, fr.Height, plane)
	switch fr.PixelFormat {
	case RGB24, BGR24:
		return w * 3
	case GRAYF32:
		return w * 4
	default:
		return w
	}
}

// New allocates a Frame of the given format/size with tightly packed
// planes (stride == BytesPerRow).
func New(pf PixelFormat, width, height int) *Frame {
	fr := &Frame{
		PixelFormat: pf,
		Width:       width,
		Height:      height,
		Planes:      make([]Plane, pf.NumPlanes()),
		Metadata:    make(map[string]any),
	}
	for i := range fr.Planes {
		_, h := pf.PlaneDimensions(width, height, i)
		stride := fr.BytesPerRow(i)
		fr.Planes[i] = Plane{
			Data:   make([]byte, stride*h),
			Stride: stride,
		}
	}
	return fr
}

// CopyPropsFrom copies the presentation timestamp and side-band
// metadata from src into fr, matching the teacher's av_frame_copy_props
// idiom used by vf_dnn_processing3.c's post_proc.
func (fr *Frame) CopyPropsFrom(src *Frame) {
	fr.PTS = src.PTS
	if len(src.Metadata) == 0 {
		return
	}
	if fr.Metadata == nil {
		fr.Metadata = make(map[string]any, len(src.Metadata))
	}
	for k, v := range src.Metadata {
		fr.Metadata[k] = v
	}
}

// Clone deep-copies fr, planes included.
func (fr *Frame) Clone() *Frame {
	out := &Frame{
		PixelFormat: fr.PixelFormat,
		Width:       fr.Width,
		Height:      fr.Height,
		PTS:         fr.PTS,
		Planes:      make([]Plane, len(fr.Planes)),
	}
	for i, p := range fr.Planes {
		data := make([]byte, len(p.Data))
		copy(data, p.Data)
		out.Planes[i] = Plane{Data: data, Stride: p.Stride}
	}
	if fr.Metadata != nil {
		out.Metadata = make(map[string]any, len(fr.Metadata))
		for k, v := range fr.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
