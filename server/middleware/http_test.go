package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/server/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	e := gin.New()
	e.Use(mw...)
	return e
}

func serve(e http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Recovery
// ---------------------------------------------------------------------------

func TestRecovery_NoPanic(t *testing.T) {
	e := newEngine(middleware.Recovery(logger.Nop()))
	e.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRecovery_Panic(t *testing.T) {
	e := newEngine(middleware.Recovery(logger.Nop()))
	e.GET("/test", func(*gin.Context) { panic("test panic") })

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["code"] != "INTERNAL_ERROR" {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestRecovery_PanicAfterStreamStarted(t *testing.T) {
	e := newEngine(middleware.Recovery(logger.Nop()))
	e.GET("/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "event: message\ndata: 1\n\n")
		panic("mid-stream")
	})

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/stream", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected the streamed status to stand, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "INTERNAL_ERROR") {
		t.Error("no JSON error should be appended to a started stream")
	}
}

// ---------------------------------------------------------------------------
// RequestID
// ---------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"generates id", ""},
		{"preserves existing", "custom-id-123"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			e := newEngine(middleware.RequestID())
			e.GET("/", func(c *gin.Context) {
				seen = c.GetString(logger.FieldRequestID)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tc.header != "" {
				req.Header.Set(middleware.HeaderRequestID, tc.header)
			}
			rr := serve(e, req)

			got := rr.Header().Get(middleware.HeaderRequestID)
			if got == "" || got != seen {
				t.Fatalf("expected response id %q to match handler id %q", got, seen)
			}
			if tc.header != "" && got != tc.header {
				t.Fatalf("expected %s, got %s", tc.header, got)
			}
		})
	}
}

func TestRequestID_ReachesLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)

	e := newEngine(middleware.RequestID())
	e.GET("/", func(c *gin.Context) {
		log.WithContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	serve(e, req)

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("expected request_id in log line, got %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name        string
		cfg         middleware.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods string
		wantCreds   string
	}{
		{
			name:        "allowed origin",
			cfg:         middleware.CORSConfig{AllowedOrigins: []string{"https://example.com"}, AllowedMethods: []string{"GET", "OPTIONS"}},
			method:      http.MethodGet,
			origin:      "https://example.com",
			wantStatus:  http.StatusOK,
			wantOrigin:  "https://example.com",
			wantMethods: "GET, OPTIONS",
		},
		{
			name:       "preflight",
			cfg:        middleware.CORSConfig{AllowedOrigins: []string{"*"}},
			method:     http.MethodOptions,
			origin:     "https://app.example.com",
			wantStatus: http.StatusNoContent,
			wantOrigin: "https://app.example.com",
		},
		{
			name:       "disallowed origin",
			cfg:        middleware.CORSConfig{AllowedOrigins: []string{"https://allowed.com"}},
			method:     http.MethodGet,
			origin:     "https://evil.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "credentials",
			cfg:        middleware.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "https://app.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://app.example.com",
			wantCreds:  "true",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			req := httptest.NewRequest(tc.method, "/streams/numbers", http.NoBody)
			req.Header.Set("Origin", tc.origin)
			rr := serve(middleware.CORS(&cfg)(ok), req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("expected origin %q, got %q", tc.wantOrigin, got)
			}
			if tc.wantMethods != "" && rr.Header().Get("Access-Control-Allow-Methods") != tc.wantMethods {
				t.Errorf("expected methods %q, got %q", tc.wantMethods, rr.Header().Get("Access-Control-Allow-Methods"))
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCreds {
				t.Errorf("expected credentials %q, got %q", tc.wantCreds, got)
			}
		})
	}
}

func TestGinWrap_PreflightStopsChain(t *testing.T) {
	cfg := middleware.CORSConfig{AllowedOrigins: []string{"*"}}
	e := newEngine(middleware.GinWrap(middleware.CORS(&cfg)))
	e.OPTIONS("/x", func(*gin.Context) { t.Error("handler should not run for a preflight") })
	e.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", http.NoBody)
	req.Header.Set("Origin", "https://app.example.com")
	if rr := serve(e, req); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr := serve(e, httptest.NewRequest(http.MethodGet, "/x", http.NoBody)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// RequestLogger
// ---------------------------------------------------------------------------

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)

	e := newEngine(middleware.RequestLogger(log))
	e.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/streams/numbers", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "event: complete\ndata: {}\n\n")
	})
	e.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(e, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if buf.Len() != 0 {
		t.Fatalf("health endpoints should not be logged, got %s", buf.String())
	}

	serve(e, httptest.NewRequest(http.MethodGet, "/streams/numbers?window=4", http.NoBody))
	line := buf.String()
	for _, want := range []string{`"path":"/streams/numbers?window=4"`, `"stream":true`, `"level":"debug"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in %s", want, line)
		}
	}

	buf.Reset()
	serve(e, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected 4xx logged at warn, got %s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// StreamLimit
// ---------------------------------------------------------------------------

func TestStreamLimit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	var rejected []string

	e := newEngine(middleware.StreamLimit(middleware.StreamLimitConfig{
		MaxPerClient: 2,
		KeyFunc:      middleware.ClientIDKey,
		OnReject:     func(name string) { rejected = append(rejected, name) },
	}))
	e.GET("/stream", func(c *gin.Context) {
		entered <- struct{}{}
		<-release
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(e, httptest.NewRequest(http.MethodGet, "/stream?client_id=a", http.NoBody))
		}()
	}
	<-entered
	<-entered

	rr := serve(e, httptest.NewRequest(http.MethodGet, "/stream?client_id=a", http.NoBody))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a third open stream, got %d", rr.Code)
	}
	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "LIMIT_EXCEEDED" || body.Details["limiter"] != "open_streams" {
		t.Errorf("unexpected refusal body: %s", rr.Body.String())
	}
	if len(rejected) != 1 || rejected[0] != "open_streams" {
		t.Errorf("expected one rejection reported, got %v", rejected)
	}

	close(release)
	wg.Wait()

	if rr := serve(e, httptest.NewRequest(http.MethodGet, "/stream?client_id=b", http.NoBody)); rr.Code != http.StatusOK {
		t.Fatalf("other clients are unaffected, got %d", rr.Code)
	}
	if rr := serve(e, httptest.NewRequest(http.MethodGet, "/stream?client_id=a", http.NoBody)); rr.Code != http.StatusOK {
		t.Fatalf("slots are released when streams end, got %d", rr.Code)
	}
}

func TestStreamRate(t *testing.T) {
	var limited int
	e := newEngine(middleware.StreamRate(middleware.StreamRateConfig{
		Rate:    0.001,
		Burst:   2,
		KeyFunc: middleware.ClientIDKey,
		OnLimit: func(string) { limited++ },
	}))
	e.GET("/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		client string
		want   int
	}{
		{"a", http.StatusOK},
		{"a", http.StatusOK},
		{"a", http.StatusTooManyRequests},
		{"b", http.StatusOK},
		{"a", http.StatusTooManyRequests},
	}
	for i, tt := range tests {
		rr := serve(e, httptest.NewRequest(http.MethodGet, "/stream?client_id="+tt.client, http.NoBody))
		if rr.Code != tt.want {
			t.Fatalf("request %d (%s): expected %d, got %d", i, tt.client, tt.want, rr.Code)
		}
		if tt.want == http.StatusTooManyRequests && !strings.Contains(rr.Body.String(), `"limiter":"stream_rate"`) {
			t.Errorf("request %d: unexpected refusal body %s", i, rr.Body.String())
		}
	}
	if limited != 2 {
		t.Errorf("expected 2 refusals reported, got %d", limited)
	}
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

func TestChain_Order(t *testing.T) {
	var order []string

	m1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m1-before")
			next.ServeHTTP(w, r)
			order = append(order, "m1-after")
		})
	}
	m2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m2-before")
			next.ServeHTTP(w, r)
			order = append(order, "m2-after")
		})
	}

	handler := middleware.Chain(m1, m2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusOK)
	}))
	serve(handler, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	expected := []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("position %d: expected %s, got %s (full: %v)", i, v, order[i], order)
		}
	}
}
