package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/JonMunkholm/txingest/internal/logging"
	"github.com/JonMunkholm/txingest/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for import logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, middleware.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

func slogFor(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
