package middle

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/mstgnz/gowompi/infra/logger"
	"github.com/mstgnz/gowompi/infra/response"
)

// PanicRecoveryMiddleware handles panics and converts them to HTTP 500 errors
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// the server aborts the connection itself
				if err == http.ErrAbortHandler {
					panic(err)
				}

				stack := debug.Stack()
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}

				// plain log first, the structured logger may be the thing that panicked
				log.Printf("PANIC RECOVERED: %v | Method: %s | Path: %s | Request ID: %s | Time: %s",
					err, r.Method, r.URL.Path, requestID, time.Now().UTC().Format(time.RFC3339))

				logger.Error("Panic recovered", fmt.Errorf("%v", err), logger.LogContext{
					RequestID: requestID,
					Fields: map[string]any{
						"method": r.Method,
						"path":   r.URL.Path,
						"stack":  string(stack),
					},
				})

				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
				w.Header().Set("Pragma", "no-cache")
				w.Header().Set("Expires", "0")

				response.Error(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("an unexpected error occurred"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
