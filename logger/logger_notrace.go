//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go provides no-op trace logging functions when the debug_trace build tag is not set.

package logger

import (
	"context"

	"github.com/facebookincubator/go-belt/pkg/field"
)

// TraceFields does nothing in builds without the debug_trace tag.
func TraceFields(ctx context.Context, message string, fields field.AbstractFields) {}

// Trace does nothing in builds without the debug_trace tag.
func Trace(ctx context.Context, values ...any) {}

// Tracef does nothing in builds without the debug_trace tag.
func Tracef(ctx context.Context, format string, args ...any) {}
