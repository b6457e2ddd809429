package log

import (
	"bufio"
	"net"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// HTTPMiddleware logs one line per request at debug level, or warn level for
// server errors. Hijacked connections are logged with status 101.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hijacked := false
		w = httpsnoop.Wrap(w, httpsnoop.Hooks{
			Hijack: func(hijack httpsnoop.HijackFunc) httpsnoop.HijackFunc {
				return func() (c net.Conn, rw *bufio.ReadWriter, err error) {
					c, rw, err = hijack()
					hijacked = err == nil
					return c, rw, err
				}
			},
		})

		m := httpsnoop.CaptureMetrics(next, w, req)

		status := m.Code
		if hijacked {
			status = http.StatusSwitchingProtocols
		}
		fields := []interface{}{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", m.Duration.Milliseconds(),
			"size", m.Written,
			"remote_addr", req.RemoteAddr,
		}
		if status >= http.StatusInternalServerError {
			Warnw("http request failed", fields...)
			return
		}
		Debugw("http request", fields...)
	})
}
