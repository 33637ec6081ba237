package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/circulation-backend/api/responses"
	pkgerrors "github.com/angelmondragon/circulation-backend/pkg/errors"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverInto(logg, w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverInto(logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	rec := recover()
	switch {
	case rec == nil:
		return
	case rec == http.ErrAbortHandler:
		panic(rec)
	}

	cause, ok := rec.(error)
	if !ok {
		cause = fmt.Errorf("%v", rec)
	}
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithField(ctx, "route", r.Method+" "+r.URL.Path)
		logg.Error(ctx, "panic.recovered", cause)
	}
	responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "handler panicked"))
}
