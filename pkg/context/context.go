// Package context carries request and crawl scoped values. Handlers and the
// crawler set them once; loggers and repositories read them everywhere else.
package context

import "context"

type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	MethodKey     ContextKey = "method"
	RouteKey      ContextKey = "route"
	RemoteIPKey   ContextKey = "remote_ip"
	TenantIDKey   ContextKey = "tenant_id"
	ProviderIDKey ContextKey = "provider_id"
	CrawlIDKey    ContextKey = "crawl_id"
)

func value(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string { return value(ctx, RequestIDKey) }

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string { return value(ctx, MethodKey) }

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string { return value(ctx, RouteKey) }

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string { return value(ctx, RemoteIPKey) }

func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

func GetTenantID(ctx context.Context) string { return value(ctx, TenantIDKey) }

// SetProviderID scopes a context to the provider a crawl or request is
// operating on.
func SetProviderID(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, ProviderIDKey, providerID)
}

func GetProviderID(ctx context.Context) string { return value(ctx, ProviderIDKey) }

// SetCrawlID tags every log line and span produced by one crawl run.
func SetCrawlID(ctx context.Context, crawlID string) context.Context {
	return context.WithValue(ctx, CrawlIDKey, crawlID)
}

func GetCrawlID(ctx context.Context) string { return value(ctx, CrawlIDKey) }

// Fields returns the non-empty scoped values as log fields.
func Fields(ctx context.Context) map[string]any {
	fields := make(map[string]any, 4)
	for _, key := range []ContextKey{RequestIDKey, TenantIDKey, ProviderIDKey, CrawlIDKey} {
		if v := value(ctx, key); v != "" {
			fields[string(key)] = v
		}
	}
	return fields
}
