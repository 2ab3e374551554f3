// Package httpmiddleware contains net/http middlewares shared by the
// storefront servers.
package httpmiddleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares so that the first one is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Route is a matched router pattern.
type Route struct {
	Method  string
	Pattern string
}

// Name is the route in "GET /api/products/{slug}" form.
func (r Route) Name() string {
	return r.Method + " " + r.Pattern
}

// RouteFinder resolves the route a request will be served by.
type RouteFinder func(method string, u *url.URL) (Route, bool)

// MakeRouteFinder returns a RouteFinder backed by a chi router.
func MakeRouteFinder(router chi.Routes) RouteFinder {
	return func(method string, u *url.URL) (Route, bool) {
		rctx := chi.NewRouteContext()
		if !router.Match(rctx, method, u.Path) {
			return Route{}, false
		}
		return Route{Method: method, Pattern: rctx.RoutePattern()}, true
	}
}

// InjectLogger sets lg as the base request logger.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
		})
	}
}

// Instrument traces and measures requests with otelhttp. Spans are named
// after the matched route.
func Instrument(serviceName string, find RouteFinder, m *app.Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "",
			otelhttp.WithPropagators(m.TextMapPropagator()),
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
			otelhttp.WithServerName(serviceName),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				if route, ok := find(r.Method, r.URL); ok {
					return route.Name()
				}
				return operation
			}),
		)
	}
}

// Labeler adds the matched route to otelhttp metric attributes.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route, ok := find(r.Method, r.URL); ok {
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(attribute.String("http.route", route.Pattern))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LogRequests logs every request once it is served. The request logger
// carries the route and request id for handlers further down.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := []zap.Field{
				zap.String("http.method", r.Method),
				zap.String("url.path", r.URL.Path),
			}
			if route, ok := find(r.Method, r.URL); ok {
				fields = append(fields, zap.String("http.route", route.Pattern))
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			ctx := zctx.With(r.Context(), fields...)
			lg := zctx.From(ctx)

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			level := zap.DebugLevel
			switch {
			case sw.status >= 500:
				level = zap.ErrorLevel
			case sw.status >= 400:
				level = zap.InfoLevel
			}
			if ce := lg.Check(level, "Request served"); ce != nil {
				ce.Write(
					zap.Int("http.status_code", sw.status),
					zap.Int("http.response_size", sw.bytes),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}
