package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pushflow/bootstrap"
	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
	"github.com/kbukum/pushflow/sse"
	"github.com/kbukum/pushflow/stream"
	"github.com/kbukum/pushflow/validation"
)

// Tick is one element of the ticks stream.
type Tick struct {
	Seq int64     `json:"seq"`
	At  time.Time `json:"at"`
}

// registerStreams mounts the demo SSE endpoints under r.
func registerStreams(r *gin.RouterGroup, cfg *Config, metrics *observability.StreamMetrics, summary *bootstrap.Summary) {
	base := sse.HandlerOptions{
		Options: sse.Options{
			Window:    int64(cfg.Stream.SSEWindow),
			KeepAlive: cfg.Stream.KeepAlive,
		},
		Metrics: metrics,
	}
	d := &demoStreams{cfg: cfg.Demo, metrics: metrics, log: logger.Get("stream")}

	routes := []struct {
		path    string
		handler gin.HandlerFunc
	}{
		{"/range", sse.Handler(d.rangeSource, named(base, "range"))},
		{"/concat", sse.Handler(d.concatSource, named(base, "concat"))},
		{"/fallback", sse.Handler(d.fallbackSource, named(base, "fallback"))},
		{"/ticks", sse.Handler(d.tickSource, named(base, "ticks"))},
	}
	for _, rt := range routes {
		r.GET(rt.path, rt.handler)
		if summary != nil {
			summary.TrackRoute(http.MethodGet, r.BasePath()+rt.path, true)
		}
	}
}

func named(o sse.HandlerOptions, name string) sse.HandlerOptions {
	o.Name = name
	return o
}

type demoStreams struct {
	cfg     DemoConfig
	metrics *observability.StreamMetrics
	log     *logger.Logger
}

func (d *demoStreams) opts(name string) []stream.Option {
	return []stream.Option{stream.WithName(name), stream.WithMetrics(d.metrics), stream.WithLogger(d.log)}
}

// queryInt reads an integer query parameter, recording a validation error
// when it is malformed or outside [min, max].
func queryInt(c *gin.Context, v *validation.Validator, key string, def, minVal, maxVal int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v.AddError(key, "must be an integer")
		return def
	}
	v.Range(key, n, minVal, maxVal)
	return n
}

// rangeSource streams count consecutive integers from start.
//
//	GET /streams/range?start=10&count=100
func (d *demoStreams) rangeSource(c *gin.Context) (stream.Operator[int64], error) {
	v := validation.New()
	start := queryInt(c, v, "start", 0, -1<<31, 1<<31-1)
	count := queryInt(c, v, "count", 100, 0, d.cfg.MaxCount)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}
	return stream.Range(int64(start), int64(count), d.opts("range")...), nil
}

// concatSource streams parts ranges of size elements one after another,
// each part starting at a multiple of 1000.
//
//	GET /streams/concat?parts=3&size=5
func (d *demoStreams) concatSource(c *gin.Context) (stream.Operator[int64], error) {
	v := validation.New()
	parts := queryInt(c, v, "parts", 3, 0, 64)
	size := queryInt(c, v, "size", 5, 0, d.cfg.MaxCount)
	v.Custom(parts*size <= d.cfg.MaxCount, "size", "parts*size exceeds the demo limit")
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	sources := make([]stream.Operator[int64], parts)
	for i := range sources {
		sources[i] = stream.Range(int64(i)*1000, int64(size))
	}
	return stream.NewConcat(sources, d.opts("concat")...), nil
}

// fallbackSource streams the primary range, or the fallback range when the
// primary turns out empty.
//
//	GET /streams/fallback?primary=0&fallback=5
func (d *demoStreams) fallbackSource(c *gin.Context) (stream.Operator[int64], error) {
	v := validation.New()
	primary := queryInt(c, v, "primary", 0, 0, d.cfg.MaxCount)
	fallback := queryInt(c, v, "fallback", 5, 0, d.cfg.MaxCount)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	return stream.OnEmptySwitch(
		stream.Range(0, int64(primary)),
		func() stream.Operator[int64] { return stream.Range(-int64(fallback), int64(fallback)) },
		d.opts("fallback")...,
	), nil
}

// tickSource emits count ticks, one per interval, pulled from a ticker only
// as the client's window allows.
//
//	GET /streams/ticks?count=10&interval_ms=250
func (d *demoStreams) tickSource(c *gin.Context) (stream.Operator[Tick], error) {
	v := validation.New()
	count := queryInt(c, v, "count", 10, 1, d.cfg.MaxCount)
	intervalMs := queryInt(c, v, "interval_ms", int(d.cfg.TickInterval/time.Millisecond), 10, 60000)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	interval := time.Duration(intervalMs) * time.Millisecond
	return stream.FromIterator(c.Request.Context(), func(context.Context) stream.Iterator[Tick] {
		return newTickIterator(int64(count), interval)
	}, d.opts("ticks")...), nil
}

// tickIterator produces a Tick each time it is pulled, no sooner than one
// interval after the previous one.
type tickIterator struct {
	remaining int64
	seq       int64
	ticker    *time.Ticker
}

func newTickIterator(count int64, interval time.Duration) *tickIterator {
	return &tickIterator{remaining: count, ticker: time.NewTicker(interval)}
}

func (it *tickIterator) Next(ctx context.Context) (Tick, bool, error) {
	if it.remaining <= 0 {
		return Tick{}, false, nil
	}
	select {
	case <-ctx.Done():
		return Tick{}, false, errors.Cancelled(ctx.Err())
	case at := <-it.ticker.C:
		it.remaining--
		it.seq++
		return Tick{Seq: it.seq, At: at.UTC()}, true, nil
	}
}

func (it *tickIterator) Close() error {
	it.ticker.Stop()
	return nil
}
