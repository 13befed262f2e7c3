package logging

import (
	"context"
	"log/slog"
)

// scope carries the identifiers of the request being served. It rides
// the context so deep call sites log them without plumbing.
type scope struct {
	requestID string
	runID     string
	subjectID string
}

type scopeKey struct{}

// WithRequestID returns a context whose log lines carry the request
// id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeFrom(ctx)
	s.requestID = requestID
	return context.WithValue(ctx, scopeKey{}, s)
}

// RequestID returns the request id carried by the context, or "".
func RequestID(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

// WithRunID returns a context whose log lines carry the pipeline run
// id.
func WithRunID(ctx context.Context, runID string) context.Context {
	s := scopeFrom(ctx)
	s.runID = runID
	return context.WithValue(ctx, scopeKey{}, s)
}

// RunID returns the run id carried by the context, or "".
func RunID(ctx context.Context) string {
	return scopeFrom(ctx).runID
}

// WithSubjectID returns a context whose log lines carry the acting
// subject.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	s := scopeFrom(ctx)
	s.subjectID = subjectID
	return context.WithValue(ctx, scopeKey{}, s)
}

// SubjectID returns the subject id carried by the context, or "".
func SubjectID(ctx context.Context) string {
	return scopeFrom(ctx).subjectID
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// contextHandler appends the context scope to every record before
// delegating to the wrapped handler.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	s := scopeFrom(ctx)
	if s.requestID != "" {
		r.AddAttrs(slog.String("request_id", s.requestID))
	}
	if s.runID != "" {
		r.AddAttrs(slog.String("run_id", s.runID))
	}
	if s.subjectID != "" {
		r.AddAttrs(slog.String("subject_id", s.subjectID))
	}
	return h.inner.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
