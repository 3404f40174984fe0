package log

import (
	"context"
	"log/slog"
)

// 上下文键定义
const (
	// RequestContextID HTTP 请求 ID
	RequestContextID = "request_id"

	// SessionContextID 聊天会话 ID
	SessionContextID = "session_id"

	// RepositoryContextID 仓库 ID
	RepositoryContextID = "repository_id"
)

// WithRequestID 在上下文中添加请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestContextID, requestID)
}

// WithSessionID 在上下文中添加会话 ID
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionContextID, sessionID)
}

// WithRepositoryID 在上下文中添加仓库 ID
func WithRepositoryID(ctx context.Context, repositoryID string) context.Context {
	return context.WithValue(ctx, RepositoryContextID, repositoryID)
}

// LogCtxFromContext 从上下文中提取日志字段
func LogCtxFromContext(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if requestID := ctx.Value(RequestContextID); requestID != nil {
		attrs = append(attrs, slog.String("request_id", requestID.(string)))
	}
	if sessionID := ctx.Value(SessionContextID); sessionID != nil {
		attrs = append(attrs, slog.String("session_id", sessionID.(string)))
	}
	if repositoryID := ctx.Value(RepositoryContextID); repositoryID != nil {
		attrs = append(attrs, slog.String("repository_id", repositoryID.(string)))
	}

	return attrs
}
