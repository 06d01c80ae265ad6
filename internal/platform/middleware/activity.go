package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ehrai/internal/platform/activity"
)

// Activity attaches the request id and client IP to the request context of
// every /api/v1 call so services can log domain actions with them. Mutating
// calls that fail are recorded here, since no service gets to log them.
func Activity(log *activity.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			ctx := activity.WithRequestID(req.Context(), requestID(c))
			ctx = activity.WithRemoteIP(ctx, c.RealIP())
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			if isMutating(req.Method) {
				if status := responseStatus(c, err); status >= http.StatusBadRequest {
					log.Log(c.Request().Context(),
						fmt.Sprintf("Failed %s %s (%d)", req.Method, req.URL.Path, status))
				}
			}
			return err
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseStatus is the status the error handler will write for err.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
