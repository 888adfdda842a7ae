package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/schema"
)

type contextKey int

const (
	hostKey contextKey = iota
	taskKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithHost annotates the logger with the remote host and login user if present.
func WithHost(ctx context.Context, host, user string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if host == "" {
		return log
	}
	if current, ok := ctx.Value(hostKey).(string); ok && current == host {
		return log
	}
	log = log.With("host", host)
	if user != "" {
		log = log.With("user", user)
	}
	return log
}

// WithTask annotates the logger with task metadata when available.
func WithTask(log pslog.Logger, id schema.TaskID, kind schema.TaskKind) pslog.Logger {
	if id != "" {
		log = log.With("task", id)
	}
	if kind != "" {
		log = log.With("kind", kind)
	}
	return log
}

// ContextWithHost stores the host marker on the context for log de-duplication.
func ContextWithHost(ctx context.Context, host string) context.Context {
	if ctx == nil || host == "" {
		return ctx
	}
	return context.WithValue(ctx, hostKey, host)
}

// ContextWithHostLogger attaches the logger and host marker to the context.
func ContextWithHostLogger(ctx context.Context, log pslog.Logger, host string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithHost(ctx, host)
}

// ContextWithTask stores the task marker on the context.
func ContextWithTask(ctx context.Context, id schema.TaskID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKey, id)
}

// TaskFromContext returns the task id stored on ctx.
func TaskFromContext(ctx context.Context) (schema.TaskID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(taskKey).(schema.TaskID)
	return id, ok && id != ""
}

// CopyContextFields copies host/task markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if host, ok := src.Value(hostKey).(string); ok && host != "" {
		dst = ContextWithHost(dst, host)
	}
	if id, ok := TaskFromContext(src); ok {
		dst = ContextWithTask(dst, id)
	}
	return dst
}
