// dnnfilterctl drives the filter stage adapter against a synthetic
// frame source, in the style of cmd/streamforward's pflag-driven CLI
// (SPEC_FULL.md, "cmd/dnnfilterctl demo binary").
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/go-dnnproc/dnnvf/frame"
	"github.com/go-dnnproc/dnnvf/stage"
)

func main() {
	opts := stage.DefaultOptions()

	loggerLevel := logger.LevelInfo
	fs := stage.NewFlagSet("dnnfilterctl", &opts)
	fs.Var(&loggerLevel, "log-level", "log level")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <pixel-format> <frame-count>\n", os.Args[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if len(fs.Args()) != 2 {
		fs.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	defer belt.Flush(ctx)

	pf, err := parsePixelFormat(fs.Arg(0))
	if err != nil {
		l.Fatal(err)
	}
	count, err := parseCount(fs.Arg(1))
	if err != nil {
		l.Fatal(err)
	}

	adapter, err := stage.New(ctx, "dnnfilterctl", pf, opts)
	if err != nil {
		l.Fatal(err)
	}
	defer adapter.Close(ctx)

	inputDesc := adapter.InputDescriptor()
	width, height := inputDesc.Shape.Width(), inputDesc.Shape.Height()

	produced := 0
	forward := func(out *frame.Frame) {
		produced++
		l.Infof("produced frame pts=%d %dx%d", out.PTS, out.Width, out.Height)
	}

	for i := int64(0); i < int64(count); i++ {
		fr := frame.New(pf, width, height)
		fr.PTS = i
		if err := adapter.Submit(ctx, fr); err != nil {
			l.Fatal(err)
		}
		for {
			out, ok := adapter.Poll(ctx)
			if !ok {
				break
			}
			forward(out)
		}
	}

	eosPTS, err := adapter.SignalEndOfStream(ctx, int64(count)-1, forward)
	if err != nil {
		l.Fatal(err)
	}
	l.Infof("end of stream at pts=%d, produced %d/%d frames", eosPTS, produced, count)
}

func parsePixelFormat(s string) (frame.PixelFormat, error) {
	for _, pf := range frame.SupportedPixelFormats {
		if pf.String() == s {
			return pf, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

func parseCount(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid frame count %q: %w", s, err)
	}
	return n, nil
}
