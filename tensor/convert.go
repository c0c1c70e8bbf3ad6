// convert.go provides the raw byte <-> typed-slice helpers the
// transcoder and the NATIVE backend use to move pixel data in and out
// of a Descriptor's Data buffer without extra allocation on the hot
// path.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PutFloat32 writes v as a little-endian float32 at byte offset off.
func PutFloat32(data []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(data[off:], math.Float32bits(v))
}

// GetFloat32 reads a little-endian float32 at byte offset off.
func GetFloat32(data []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
}

// CopyBytesToFloat32 reinterprets src (packed little-endian float32
// values, as produced by Descriptor.Data for a Float32 tensor) into dst.
func CopyBytesToFloat32(src []byte, dst []float32) error {
	if len(src) != len(dst)*4 {
		return fmt.Errorf("tensor: byte/float32 length mismatch: %d bytes for %d floats", len(src), len(dst))
	}
	for i := range dst {
		dst[i] = GetFloat32(src, i*4)
	}
	return nil
}

// CopyFloat32ToBytes packs src into dst as little-endian float32 (et ==
// Float32) or clamped-and-narrowed uint8 (et == UInt8), matching the
// tensor -> frame clamping rule in spec.md §4.3.
func CopyFloat32ToBytes(src []float32, dst []byte, et ElementType) error {
	switch et {
	case Float32:
		if len(dst) != len(src)*4 {
			return fmt.Errorf("tensor: byte/float32 length mismatch: %d bytes for %d floats", len(dst), len(src))
		}
		for i, v := range src {
			PutFloat32(dst, i*4, v)
		}
	case UInt8:
		if len(dst) != len(src) {
			return fmt.Errorf("tensor: byte/uint8 length mismatch: %d bytes for %d values", len(dst), len(src))
		}
		for i, v := range src {
			dst[i] = ClampToUint8(v)
		}
	default:
		return fmt.Errorf("tensor: unknown element type %v", et)
	}
	return nil
}

// ClampToUint8 narrows a float32 to a byte, clamping to [0, 255] per
// spec.md §4.3's "clamping to [0, 255] when narrowing float32->uint8".
func ClampToUint8(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
