package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/circulation-backend/api/responses"
	pkgAuth "github.com/angelmondragon/circulation-backend/pkg/auth"
	"github.com/angelmondragon/circulation-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

// MemberIDParam is the route parameter carrying the member card id.
const MemberIDParam = "memberID"

// Auth validates a bearer token and seeds the request context with the member.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx := WithMemberID(r.Context(), claims.MemberCardID)
			if logg != nil {
				ctx = logg.WithMemberID(ctx, claims.MemberCardID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMemberScope rejects requests whose {memberID} path segment names a
// different member than the token.
func RequireMemberScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pathID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, MemberIDParam)))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid member id"))
				return
			}
			if pathID != MemberIDFromContext(r.Context()) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "member mismatch"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
