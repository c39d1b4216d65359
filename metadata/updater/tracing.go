// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package updater

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the one capability a RepositoryLoader needs from OpenTelemetry:
// start a span for one named step of a load cycle. A nil Tracer disables
// tracing entirely (startSpan returns a no-op span).
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, trace.Span)
}

// otelTracer adapts an otel Tracer to this package's narrower interface.
type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry trace.Tracer (e.g. from
// otel.Tracer("tufclient/updater")).
func NewTracer(t trace.Tracer) Tracer {
	return otelTracer{tracer: t}
}

func (t otelTracer) Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// span wraps an in-flight trace.Span so callers can End(err) instead of
// juggling otel's SetStatus/RecordError calls inline, and so a nil Tracer
// produces a harmless zero-value span.
type span struct {
	s trace.Span
}

func startSpan(ctx context.Context, t Tracer, name string) span {
	if t == nil {
		return span{}
	}
	_, s := t.Start(ctx, name)
	return span{s: s}
}

// End records err (if any) on the span and closes it. A no-op on a span that
// was never started.
func (s span) End(err error) {
	if s.s == nil {
		return
	}
	if err != nil {
		s.s.RecordError(err)
		s.s.SetStatus(codes.Error, err.Error())
	} else {
		s.s.SetStatus(codes.Ok, "")
	}
	s.s.End()
}
