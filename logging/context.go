package logging

import (
	"context"

	"go.viam.com/utils"
)

type traceKeyType int

const traceKeyID = traceKeyType(iota)

// TraceField is the field name under which C* entries carry the trace key of their context.
const TraceField = "trace"

// EnableDebugMode returns a context whose C* log calls are emitted at every level and tagged with
// key, so one block or one motion can be followed through the arm and controller logs. An empty
// key is replaced with a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, traceKeyID, key)
}

// TraceKey returns the key the context was enabled with, if any.
func TraceKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(traceKeyID).(string)
	return key, ok
}

// IsDebugMode returns whether the context has debug logging enabled.
func IsDebugMode(ctx context.Context) bool {
	_, ok := TraceKey(ctx)
	return ok
}
