package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides the OpenTelemetry providers, as app.Telemetry does.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and meters every request through otelhttp.
func Instrument(service string, t Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/livez" && r.URL.Path != "/readyz"
			}),
		)
	}
}

// Labeler names the span after the matched route and adds http.route to the
// otelhttp metrics. It must run inside Instrument.
func Labeler() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			route := RoutePattern(r)
			attr := attribute.String("http.route", route)
			span := trace.SpanFromContext(r.Context())
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attr)
			if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				l.Add(attr)
			}
		})
	}
}
