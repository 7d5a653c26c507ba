package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMiddlewareNamesSpansByRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/attempts/{attemptID}", func(w http.ResponseWriter, r *http.Request) {})

	for _, id := range []string{"a1", "a2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/attempts/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "GET /attempts/{attemptID}", spans[0].Name())
	assert.Equal(t, "GET /attempts/{attemptID}", spans[1].Name())
	assert.Equal(t, "GET", spans[2].Name(), "unmatched routes keep the method name")
}
