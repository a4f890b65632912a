package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StoryBB/StoryBB-sub005/api"
)

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	api.SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { api.SetLogger(slog.Default()) })

	handler := api.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("brewing"))
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/profile/3/account", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "brewing", w.Body.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/profile/3/account", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, 0, entry["member"], "guests log as member 0")
}

func TestCORSMiddleware(t *testing.T) {
	calls := 0
	handler := api.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		method string
		status int
		calls  int
	}{
		{method: http.MethodOptions, status: http.StatusNoContent, calls: 0},
		{method: http.MethodPost, status: http.StatusOK, calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			calls = 0
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, "/boards/1/topics", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.calls, calls)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), api.CSRFHeader)
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), tt.method)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := api.RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("sheet renderer exploded")
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal Server Error")
	assert.NotContains(t, w.Body.String(), "exploded")

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fine", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCSRFMiddlewareSkipsGuests(t *testing.T) {
	called := false
	handler := api.CSRFMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/boards/1/topics", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	r := mux.NewRouter()
	r.Use(api.TracingMiddleware)
	r.HandleFunc("/topics/{topic}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/topics/42", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /topics/{topic}", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}
