package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/sse"
	"github.com/kbukum/pushflow/stream"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	srv := New(Config{Addr: "127.0.0.1:0"}, logger.Nop())
	srv.ApplyDefaults("streamd-test", nil)
	srv.GinEngine().GET("/streams/numbers", sse.Handler(func(*gin.Context) (stream.Operator[int64], error) {
		return stream.Range(1, 3), nil
	}, sse.HandlerOptions{Name: "numbers"}))

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func h2cClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
}

func TestServer_StreamsOverHTTP1AndH2C(t *testing.T) {
	srv := startServer(t)
	url := "http://" + srv.Addr() + "/streams/numbers?window=2"

	tests := []struct {
		name      string
		client    *http.Client
		wantProto int
	}{
		{"http/1.1", http.DefaultClient, 1},
		{"h2c", h2cClient(), 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := tc.client.Get(url)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.ProtoMajor != tc.wantProto {
				t.Errorf("expected HTTP/%d, got %s", tc.wantProto, resp.Proto)
			}
			if resp.Header.Get("X-Request-Id") == "" {
				t.Error("expected request id header")
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			if got := strings.Count(string(body), "event: message"); got != 3 {
				t.Errorf("expected 3 message frames, got %d in %q", got, body)
			}
			if !strings.Contains(string(body), "event: complete") {
				t.Error("expected complete frame")
			}
		})
	}
}

func TestServer_DefaultEndpoints(t *testing.T) {
	srv := startServer(t)

	for _, path := range []string{"/health", "/alive", "/ready", "/metrics", "/version"} {
		resp, err := http.Get("http://" + srv.Addr() + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_Preflight(t *testing.T) {
	srv := startServer(t)

	req, _ := http.NewRequest(http.MethodOptions, "http://"+srv.Addr()+"/streams/numbers", http.NoBody)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Last-Event-ID") {
		t.Errorf("expected Last-Event-ID among allowed headers, got %q", got)
	}
}

func TestServer_StreamGroupLimits(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0", StreamRate: 0.001, StreamBurst: 1, MaxStreamsPerClient: 1}, logger.Nop())
	srv.ApplyMiddleware()
	srv.StreamGroup("/streams", nil).GET("/numbers", func(c *gin.Context) { c.Status(http.StatusOK) })
	srv.GinEngine().GET("/other", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path string
		want int
	}{
		{"/streams/numbers", http.StatusOK},
		{"/streams/numbers", http.StatusTooManyRequests},
		{"/other", http.StatusOK},
		{"/other", http.StatusOK},
	}
	for i, tt := range tests {
		rr := httptest.NewRecorder()
		srv.GinEngine().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
		if rr.Code != tt.want {
			t.Errorf("request %d %s: expected %d, got %d", i, tt.path, tt.want, rr.Code)
		}
	}
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{errors.Validation("bad"), http.StatusBadRequest, "INVALID_INPUT"},
		{errors.InvalidDemand(0), http.StatusBadRequest, "INVALID_DEMAND"},
		{errors.Upstream("orders", io.EOF), http.StatusBadGateway, "UPSTREAM_FAILED"},
		{errors.LimitExceeded("streams", "too many open streams"), http.StatusTooManyRequests, "LIMIT_EXCEEDED"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	gin.SetMode(gin.TestMode)
	for _, tc := range tests {
		t.Run(tc.wantCode, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			RespondWithError(c, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.wantCode) {
				t.Errorf("expected %s in body %s", tc.wantCode, rr.Body.String())
			}
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Addr != ":8080" || cfg.ShutdownTimeout == 0 || cfg.MaxConcurrentStreams != 250 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("unexpected CORS defaults %+v", cfg.CORS)
	}
}
