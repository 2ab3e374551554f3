package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowOrigins lists allowed origins; empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, DELETE, OPTIONS.
	AllowMethods []string
	// AllowHeaders defaults to echoing Access-Control-Request-Headers.
	AllowHeaders  []string
	ExposeHeaders []string
	// AllowCredentials lets browsers send the session cookie. With a
	// wildcard origin the request origin is echoed instead of "*".
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

type cors struct {
	any      bool
	origins  map[string]string // lower-case -> configured
	methods  string
	headers  string
	expose   string
	maxAge   string
	withCred bool
}

func newCORS(cfg CORSConfig) *cors {
	c := &cors{
		any:      len(cfg.AllowOrigins) == 0,
		origins:  make(map[string]string, len(cfg.AllowOrigins)),
		methods:  strings.Join(cfg.AllowMethods, ", "),
		headers:  strings.Join(cfg.AllowHeaders, ", "),
		expose:   strings.Join(cfg.ExposeHeaders, ", "),
		withCred: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.any = true
			continue
		}
		c.origins[strings.ToLower(o)] = o
	}
	if c.methods == "" {
		c.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return c
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when it is not allowed.
func (c *cors) allowOrigin(origin string) string {
	if c.any {
		if c.withCred {
			return origin
		}
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

// varies reports whether responses depend on the Origin header.
func (c *cors) varies() bool {
	return !c.any || c.withCred
}

// CORS handles preflight requests and sets CORS headers on actual requests.
func CORS(cfg CORSConfig) Middleware {
	c := newCORS(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if c.varies() {
				h.Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allow := c.allowOrigin(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allow != "" {
					h.Set("Access-Control-Allow-Origin", allow)
					h.Set("Access-Control-Allow-Methods", c.methods)
					if c.headers != "" {
						h.Set("Access-Control-Allow-Headers", c.headers)
					} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						h.Set("Access-Control-Allow-Headers", rh)
					}
					if c.withCred {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if c.maxAge != "" {
						h.Set("Access-Control-Max-Age", c.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if c.withCred {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if c.expose != "" {
					h.Set("Access-Control-Expose-Headers", c.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
