package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries the trace/request identifiers threaded through a single
// HTTP request, so handlers and logging middleware can tag their output
// without re-deriving the IDs from headers.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}
