package auth

import (
	"context"
	"strings"
)

type subjectContextKey struct{}

// ContextWithSubject stores the authenticated user id in the context.
func ContextWithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, strings.TrimSpace(subjectID))
}

// SubjectFromContext extracts the authenticated user id from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(subjectContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
