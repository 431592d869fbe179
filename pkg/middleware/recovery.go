package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	apperrors "queuegate/pkg/errors"
	httputil "queuegate/pkg/http"
	"queuegate/pkg/logger"
)

// handlerPanic carries a panic raised on another goroutine together with the
// stack captured where it happened.
type handlerPanic struct {
	value any
	stack []byte
}

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				value, stack := recovered, debug.Stack()
				if hp, ok := recovered.(*handlerPanic); ok {
					value, stack = hp.value, hp.stack
				}
				if err, ok := value.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(value)
				}

				log.Error("Panic recovered",
					"request_id", requestIDFrom(r),
					"error", value,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				if err := httputil.WriteError(w, apperrors.Internal("Internal server error", nil)); err != nil {
					log.Error("failed to write error response", "middleware", "Recovery", "operation", "WriteError", "error", err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
