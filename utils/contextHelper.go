package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/bindsync_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyAccountId     = appctx.ContextKeyAccountId
	ContextKeyTriggeredBy   = appctx.ContextKeyTriggeredBy
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetAccountIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAccountId)
}

func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	return appctx.Set(ctx, ContextKeyAccountId, accountId)
}

// DetachContext keeps the request's values (correlation id etc.) but drops
// its cancellation, for work that outlives the HTTP request.
func DetachContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func GetTriggeredByFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTriggeredBy)
}

func SetTriggeredByInContext(ctx context.Context, triggeredBy string) context.Context {
	return appctx.Set(ctx, ContextKeyTriggeredBy, triggeredBy)
}
