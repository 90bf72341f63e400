// Package tracing propagates trace context across channel bindings that
// carry metadata, such as gRPC streams.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// TraceIDKey carries the plain trace id next to the W3C headers so that
// peers without a propagator can still log it.
const TraceIDKey = "x-trace-id"

// mdCarrier adapts gRPC metadata, whose keys are lower case, to the
// propagation.TextMapCarrier interface.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c mdCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func propagator() propagation.TextMapPropagator {
	if p := otel.GetTextMapPropagator(); len(p.Fields()) > 0 {
		return p
	}
	return propagation.TraceContext{}
}

// InjectMetadata writes the trace context of ctx into md, allocating md when
// nil.
func InjectMetadata(ctx context.Context, md metadata.MD) metadata.MD {
	if md == nil {
		md = metadata.MD{}
	}
	propagator().Inject(ctx, mdCarrier(md))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		md.Set(TraceIDKey, sc.TraceID().String())
	}
	return md
}

// OutgoingContext attaches the trace context of ctx to its outgoing gRPC
// metadata.
func OutgoingContext(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	return metadata.NewOutgoingContext(ctx, InjectMetadata(ctx, md.Copy()))
}

// ExtractMetadata restores the remote span context carried by md.
func ExtractMetadata(ctx context.Context, md metadata.MD) context.Context {
	if md == nil {
		return ctx
	}
	ctx = propagator().Extract(ctx, mdCarrier(md))
	if ids := md.Get(TraceIDKey); len(ids) > 0 {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String(TraceIDKey, ids[0]))
	}
	return ctx
}

// IncomingContext extracts the trace context from the incoming gRPC
// metadata of ctx.
func IncomingContext(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return ExtractMetadata(ctx, md)
}

// Tracer returns a named tracer for transport components.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
