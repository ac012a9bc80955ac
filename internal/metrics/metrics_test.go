package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/events/{id}"))
	beforeErr := testutil.ToFloat64(httpErrorsTotal.WithLabelValues(http.MethodGet, "/api/events/{id}", "500"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events/def", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/events/{id}")))
	assert.Equal(t, beforeErr+2, testutil.ToFloat64(httpErrorsTotal.WithLabelValues(http.MethodGet, "/api/events/{id}", "500")))
}

func TestExpansionCounters(t *testing.T) {
	before := testutil.ToFloat64(occurrencesTotal.WithLabelValues("weekends"))
	AddOccurrences("weekends", 8)
	AddOccurrences("weekends", 0)
	assert.Equal(t, before+8, testutil.ToFloat64(occurrencesTotal.WithLabelValues("weekends")))

	beforeMalformed := testutil.ToFloat64(malformedEventsTotal)
	AddMalformedEvents(3)
	AddMalformedEvents(-1)
	assert.Equal(t, beforeMalformed+3, testutil.ToFloat64(malformedEventsTotal))
}

func TestRouteFromContext(t *testing.T) {
	assert.Equal(t, "unknown", routeFromContext(context.Background()))
	ctx := context.WithValue(context.Background(), routeLabelKey, "/api/events")
	assert.Equal(t, "/api/events", routeFromContext(ctx))
	ObserveDBLatency(ctx, "events.list_by_owner", time.Now())
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	assert.Equal(t, "/unrouted", RoutePattern(req))
}
