package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/teilomillet/studyhall/server/metrics"
	"github.com/teilomillet/studyhall/server/middleware"
)

func TestPrometheusMetrics(t *testing.T) {
	m := metrics.NewMetrics()

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedCode   int
		expectedStatus string
		errorType      string
	}{
		{
			name: "success request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "200",
		},
		{
			name:           "implicit success",
			handler:        func(w http.ResponseWriter, r *http.Request) {},
			expectedCode:   http.StatusOK,
			expectedStatus: "200",
		},
		{
			name: "client error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			expectedCode:   http.StatusBadRequest,
			expectedStatus: "400",
			errorType:      "client_error",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			expectedCode:   http.StatusInternalServerError,
			expectedStatus: "500",
			errorType:      "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.PrometheusMetrics(m)(tt.handler)

			before := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/", tt.expectedStatus))
			var errBefore float64
			if tt.errorType != "" {
				errBefore = testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(tt.errorType))
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Equal(t, before+1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/", tt.expectedStatus)))
			assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues("all")))

			if tt.errorType != "" {
				assert.Equal(t, errBefore+1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(tt.errorType)))
			}
		})
	}
}

func TestPrometheusMetrics_RoutePattern(t *testing.T) {
	m := metrics.NewMetrics()

	r := chi.NewRouter()
	r.Use(middleware.PrometheusMetrics(m))
	r.Get("/subjects/{key}", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/subjects/math", "/subjects/history", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/subjects/{key}", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unmatched", "404")))
}
