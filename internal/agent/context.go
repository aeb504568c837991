package agent

import "context"

type contextKey int

const (
	merchantIDKey contextKey = iota
	runIDKey
)

// ContextWithMerchantID attaches the merchant a run acts for. Tools read it
// back with MerchantIDFromContext.
func ContextWithMerchantID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, merchantIDKey, id)
}

func MerchantIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(merchantIDKey).(int64); ok {
		return v
	}
	return 0
}

func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}
