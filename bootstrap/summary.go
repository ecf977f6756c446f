package bootstrap

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/pushflow/logger"
)

// RouteInfo is a registered HTTP route.
type RouteInfo struct {
	Method string
	Path   string
	Stream bool
}

// Summary collects what a service set up during startup and logs it once
// the service is ready.
type Summary struct {
	mu              sync.Mutex
	serviceName     string
	version         string
	startupDuration time.Duration
	routes          []RouteInfo
	telemetry       map[string]string
}

// NewSummary creates a new startup summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{
		serviceName: serviceName,
		version:     version,
		telemetry:   make(map[string]string),
	}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startupDuration = d
}

// TrackRoute records an HTTP route; stream marks SSE endpoints.
func (s *Summary) TrackRoute(method, path string, stream bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path, Stream: stream})
}

// TrackTelemetry records an enabled exporter and its endpoint.
func (s *Summary) TrackTelemetry(signal, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry[signal] = endpoint
}

// Routes returns the tracked routes sorted by path.
func (s *Summary) Routes() []RouteInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	routes := append([]RouteInfo(nil), s.routes...)
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	return routes
}

// Display logs the summary as one structured line.
func (s *Summary) Display(log *logger.Logger) {
	routes := s.Routes()

	s.mu.Lock()
	defer s.mu.Unlock()

	streams := make([]string, 0, len(routes))
	for _, r := range routes {
		if r.Stream {
			streams = append(streams, r.Path)
		}
	}
	telemetry := make([]string, 0, len(s.telemetry))
	for signal, endpoint := range s.telemetry {
		telemetry = append(telemetry, signal+"="+endpoint)
	}
	sort.Strings(telemetry)

	log.Info("Startup complete", logger.Fields(
		"service", s.serviceName,
		"version", s.version,
		logger.FieldDuration, s.startupDuration.Milliseconds(),
		"routes", len(routes),
		"streams", strings.Join(streams, ","),
		"telemetry", strings.Join(telemetry, ","),
	))
}
