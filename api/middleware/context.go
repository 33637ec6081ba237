package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxMemberID contextKey = "member_id"

// MemberIDFromContext returns the member card id authenticated for the request.
func MemberIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxMemberID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithMemberID injects the authenticated member into the context.
func WithMemberID(ctx context.Context, memberID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxMemberID, memberID)
}
