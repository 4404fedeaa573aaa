package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr
}

func TestInitMetrics_ScrapeEndpoint(t *testing.T) {
	handler, shutdown, err := InitMetrics("flowplane-engine")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	rr := scrape(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape returned status %d, want 200", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("scrape returned an empty body")
	}
}

func TestInitMetrics_CounterReachesScrape(t *testing.T) {
	handler, shutdown, err := InitMetrics("flowplane-engine")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	// Instruments created through the global provider must land in the
	// exporter's output, the way the engine's gauges do.
	meter := otel.Meter("flowplane-engine")
	counter, err := meter.Int64Counter("flowplane.deliveries.test")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(context.Background(), 7)

	body := scrape(t, handler).Body.String()
	if !strings.Contains(body, "flowplane_deliveries_test") {
		t.Errorf("counter missing from scrape output:\n%s", body)
	}
	if !strings.Contains(body, "7") {
		t.Errorf("counter value missing from scrape output:\n%s", body)
	}
}
