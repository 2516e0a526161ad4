package server

import (
	"net/http"
	"time"

	"github.com/vincentbai/mindfulweb-agent/internal/logx"
)

type responseRecorder struct {
	status int
	bytes  int64
	writer http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.writer.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.writer.Write(p)
	r.bytes += int64(n)
	return n, err
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{writer: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logger := logx.Ctx(r.Context()).With("remote", r.RemoteAddr)
		fields := []any{"method", r.Method, "path", r.URL.Path, "status", status, "bytes", rec.bytes, "duration_ms", time.Since(start).Milliseconds()}
		// Signals arrive on every tab switch.
		if r.URL.Path == "/signals" && status < http.StatusBadRequest {
			logger.Trace("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	})
}
