//go:build !with_cv
// +build !with_cv

// native_no_cv.go stubs the NATIVE backend variant when the module is
// built without the with_cv tag (mirrors codec/codec_no_mediacodec.go's
// stubbed-capability idiom), so a build without OpenCV still links.
package backend

import (
	"context"
	"fmt"
)

type nativeBackend struct{}

func newNative() Backend { return nativeBackend{} }

func (nativeBackend) Variant() Variant { return Native }

func (nativeBackend) Load(ctx context.Context, modelPath string, options string) (Model, error) {
	return nil, fmt.Errorf("built without with_cv support: dnn_backend=native requires gocv")
}
