package middleware

import (
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// Logger emits one structured line per request after the handler returns.
// Probe endpoints are skipped; they fire every few seconds and drown the log.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()

			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			if strings.HasPrefix(req.URL.Path, "/v1/health") {
				return nil
			}

			ctx := req.Context()
			fields := appctx.Fields(ctx)
			fields["method"] = req.Method
			fields["uri"] = req.RequestURI
			fields["route"] = c.Path()
			fields["status"] = res.Status
			fields["remote_ip"] = c.RealIP()
			fields["user_agent"] = req.UserAgent()
			fields["response_time_ms"] = elapsed.Milliseconds()
			fields["response_size"] = res.Size

			logger.WithContext(ctx).WithFields(fields).Info("Request")
			return nil
		}
	}
}
