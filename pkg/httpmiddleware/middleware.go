// Package httpmiddleware contains the HTTP middleware chain of the storefront
// API server.
package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// writeError writes the {"code","message"} body shared with the API handlers.
func writeError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
