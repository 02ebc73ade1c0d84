package auth

import "context"

type ctxKey string

const subjectKey ctxKey = "sub"

// WithSubject stores the authenticated subject id on the context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromContext returns the authenticated subject id, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}
