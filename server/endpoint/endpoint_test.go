package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/observability"
)

type staticChecker observability.Health

func (s staticChecker) CheckHealth(context.Context) observability.Health {
	return observability.Health(s)
}

func get(t *testing.T, h gin.HandlerFunc) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.GET("/", h)
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return rr.Code, body
}

func TestHealth(t *testing.T) {
	up := staticChecker{Name: "streams", Status: observability.HealthStatusUp}
	degraded := staticChecker{Name: "exporter", Status: observability.HealthStatusDegraded}
	down := staticChecker{Name: "source", Status: observability.HealthStatusDown}

	tests := []struct {
		name       string
		checkers   []observability.HealthChecker
		wantCode   int
		wantStatus string
		wantReady  int
	}{
		{"no checkers", nil, http.StatusOK, "up", http.StatusOK},
		{"all up", []observability.HealthChecker{up}, http.StatusOK, "up", http.StatusOK},
		{"degraded", []observability.HealthChecker{up, degraded}, http.StatusOK, "degraded", http.StatusOK},
		{"down", []observability.HealthChecker{degraded, down}, http.StatusServiceUnavailable, "down", http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := get(t, Health("streamd", tc.checkers...))
			if code != tc.wantCode {
				t.Errorf("expected %d, got %d", tc.wantCode, code)
			}
			if body["status"] != tc.wantStatus {
				t.Errorf("expected status %q, got %v", tc.wantStatus, body["status"])
			}
			if body["service"] != "streamd" {
				t.Errorf("expected service streamd, got %v", body["service"])
			}

			code, _ = get(t, Readiness("streamd", tc.checkers...))
			if code != tc.wantReady {
				t.Errorf("readiness: expected %d, got %d", tc.wantReady, code)
			}
		})
	}
}

func TestHealth_StreamMetrics(t *testing.T) {
	metrics, err := observability.NewStreamMetrics(observability.Meter("endpoint-test"))
	if err != nil {
		t.Fatal(err)
	}
	_, body := get(t, Health("streamd", metrics))

	components, ok := body["components"].([]any)
	if !ok || len(components) != 1 {
		t.Fatalf("expected one component, got %v", body["components"])
	}
	if name := components[0].(map[string]any)["name"]; name != "streams" {
		t.Errorf("expected streams component, got %v", name)
	}
}

func TestLivenessAndVersion(t *testing.T) {
	code, body := get(t, Liveness("streamd"))
	if code != http.StatusOK || body["status"] != "alive" {
		t.Errorf("unexpected liveness response %d %v", code, body)
	}

	code, body = get(t, Version())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	build, ok := body["build"].(map[string]any)
	if !ok || build["version"] == "" {
		t.Errorf("expected build info, got %v", body)
	}
}

func TestMetrics(t *testing.T) {
	code, body := get(t, Metrics(nil))
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if n, ok := body["goroutines"].(float64); !ok || n < 1 {
		t.Errorf("expected goroutine count, got %v", body["goroutines"])
	}
}
