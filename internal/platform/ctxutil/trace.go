package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	// TurnID identifies one chat turn or ask call.
	TurnID string
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

// TurnID returns the turn id carried by ctx, or "".
func TurnID(ctx context.Context) string {
	if td := GetTraceData(ctx); td != nil {
		return td.TurnID
	}
	return ""
}

// WithTurnID copies any existing trace data and sets the turn id.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	td := TraceData{TurnID: turnID}
	if cur := GetTraceData(ctx); cur != nil {
		td = *cur
		td.TurnID = turnID
	}
	return WithTraceData(ctx, &td)
}

// LogFields returns key/value pairs for whatever ids are present.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var kv []interface{}
	if td.TraceID != "" {
		kv = append(kv, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		kv = append(kv, "request_id", td.RequestID)
	}
	if td.TurnID != "" {
		kv = append(kv, "turn_id", td.TurnID)
	}
	return kv
}
