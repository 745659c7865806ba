package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// Origins allowed to call the API. Empty or "*" allows any origin.
	Origins []string
	// Methods defaults to the methods the storefront API serves.
	Methods []string
	// Headers allowed on requests. Empty echoes Access-Control-Request-Headers.
	Headers []string
	// Expose lists response headers readable by the browser.
	Expose []string
	// Credentials allows cookies. A wildcard origin is then echoed verbatim.
	Credentials bool
	// MaxAge of preflight results.
	MaxAge int
}

var defaultMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// CORS answers preflight requests and decorates cross-origin responses.
func CORS(cfg CORSConfig) Middleware {
	anyOrigin := len(cfg.Origins) == 0
	origins := make(map[string]string, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			anyOrigin = true
			continue
		}
		origins[strings.ToLower(o)] = o
	}
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = defaultMethods
	}
	var (
		allowMethods = strings.Join(methods, ", ")
		allowHeaders = strings.Join(cfg.Headers, ", ")
		expose       = strings.Join(cfg.Expose, ", ")
		maxAge       = ""
	)
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	allow := func(origin string) string {
		if o, ok := origins[strings.ToLower(origin)]; ok {
			return o
		}
		if !anyOrigin {
			return ""
		}
		if cfg.Credentials {
			return origin
		}
		return "*"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed := allow(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed != "" {
					h.Set("Access-Control-Allow-Origin", allowed)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					if allowHeaders != "" {
						h.Set("Access-Control-Allow-Headers", allowHeaders)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if cfg.Credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed != "" {
				h.Set("Access-Control-Allow-Origin", allowed)
				if cfg.Credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
