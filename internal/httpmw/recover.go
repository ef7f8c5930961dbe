package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/platform-demo/internal/log"
	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// Recover turns a handler panic into a 500 and an error log. onPanic, if set,
// runs after logging (the metrics panic counter). http.ErrAbortHandler is
// re-raised so net/http can abort the connection as intended.
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				err = xerrors.WithStack(xerrors.Wrap(err, "handler panic"))

				ctx := r.Context()
				base.Error(ctx, err, "httpserver panic recovered",
					"request_id", RequestIDFromContext(ctx),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				)
				if onPanic != nil {
					onPanic()
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
