package cache

import (
	"bytes"
	"net/http"
)

// Response is a captured HTTP response body and content type.
type Response struct {
	ContentType string
	Body        []byte
}

// recorder wraps http.ResponseWriter to capture the status and body.
type recorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *recorder) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware caches 200 responses to GET requests, keyed by request URI.
// It must only wrap handlers whose 200 bodies never change, such as the
// result of a finished job. Hits carry an X-Cache: HIT header.
func Middleware(c *LRU[string, Response]) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if cached, ok := c.Get(key); ok {
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &recorder{ResponseWriter: w}
			rec.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.statusCode == http.StatusOK {
				c.Set(key, Response{
					ContentType: rec.Header().Get("Content-Type"),
					Body:        bytes.Clone(rec.body.Bytes()),
				})
			}
		})
	}
}
