package realtime_test

import (
	"context"
	"log/slog"
)

// discardHandler mirrors discardHandler (Go 1.24+) for older toolchains.
var discardHandler slog.Handler = discardSlogHandler{}

type discardSlogHandler struct{}

func (discardSlogHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardSlogHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardSlogHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardSlogHandler) WithGroup(string) slog.Handler           { return d }
