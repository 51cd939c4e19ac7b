// Copyright © 2018 One Concern

package space

import (
	"context"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Instrument wraps a space with a tracing span and a log line per witnessed request
func Instrument(tr opentracing.Tracer, logger *zap.Logger, s Space) Space {
	if tr == nil {
		tr = opentracing.NoopTracer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedSpace{
		tr:     tr,
		space:  s,
		logger: logger.With(zap.String("space", s.String())),
	}
}

type instrumentedSpace struct {
	space  Space
	tr     opentracing.Tracer
	logger *zap.Logger
}

func (i *instrumentedSpace) opName(name string) string {
	return strings.Join([]string{"space", i.String(), name}, ".")
}

func (i *instrumentedSpace) spanFromContext(ctx context.Context, name string) opentracing.Span {
	parent := opentracing.SpanFromContext(ctx)
	var span opentracing.Span
	if parent != nil {
		span = i.tr.StartSpan(name, opentracing.ChildOf(parent.Context()))
	} else {
		span = i.tr.StartSpan(name)
	}
	return span
}

func (i *instrumentedSpace) Witness(ctx context.Context, arg *Arg) (*Result, error) {
	var op string
	if arg != nil {
		op, _ = Route(arg.Options)
	}
	span := i.spanFromContext(ctx, i.opName(op))
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	if arg != nil {
		span.SetTag("arg", arg.Addr())
		i.logger.Info("space witness", zap.String("op", op), zap.Int("addrs", len(arg.Options.Addrs)), zap.Int("nodes", len(arg.Nodes)))
	}
	res, err := i.space.Witness(ctx, arg)
	switch {
	case err != nil:
		span.SetTag("error", true)
		i.logger.Error("space witness", zap.String("op", op), zap.Error(err))
	case res != nil:
		span.SetTag("success", res.Data.Success)
	}
	return res, err
}

func (i *instrumentedSpace) Close() error {
	return i.space.Close()
}

func (i *instrumentedSpace) String() string {
	return i.space.String()
}
