package web

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/amachang/passgate/internal/platform/requestctx"
)

// tracingMiddleware opens one server span per request, continuing any trace
// carried in the incoming headers. With no tracer provider configured it is
// a no-op.
func tracingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	tracer := otel.Tracer("passgate/web")
	return func(c echo.Context) error {
		req := c.Request()
		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		ctx, span := tracer.Start(ctx, req.Method+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("http.route", c.Path()),
			),
		)
		defer span.End()

		c.SetRequest(req.WithContext(ctx))
		err := next(c)

		// The session middleware runs inside this span and rebinds the
		// request context; read the resolved identifiers back from it.
		resolved := c.Request().Context()
		if sessionID := requestctx.SessionIDFromContext(resolved); sessionID != "" {
			span.SetAttributes(attribute.String("session.id", sessionID))
		}
		if userID := requestctx.UserIDFromContext(resolved); userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}

		status := c.Response().Status
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		} else if status >= 500 {
			span.SetStatus(otelcodes.Error, fmt.Sprintf("status %d", status))
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		return err
	}
}
