package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pushflow/errors"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/observability"
	"github.com/kbukum/pushflow/stream"
)

// Defaults for Options.
const (
	DefaultWindow    = 16
	DefaultKeepAlive = 15 * time.Second
)

// Options configures how a stream is written as Server-Sent Events.
type Options struct {
	// ClientID identifies the connection in logs and in the connected
	// frame. A random UUID is used when empty.
	ClientID string
	// Window is the number of events the client may have outstanding.
	// It is requested up front and topped up by one per written event.
	Window int64
	// KeepAlive is the interval of comment frames. Zero uses the default,
	// negative disables keep-alives.
	KeepAlive time.Duration
	// Encode turns an element into the frame's data. JSON by default.
	Encode func(v any) ([]byte, error)
}

func (o *Options) applyDefaults() {
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.Encode == nil {
		o.Encode = json.Marshal
	}
}

// signal is a terminal outcome passed from the subscription callbacks to
// the writing goroutine.
type signal struct {
	err error
}

// Serve subscribes to op and writes it to w until the stream terminates or
// ctx ends. Elements are buffered in a channel the size of the window; one
// unit of demand is returned per written event, so producers never block
// on the channel. A disconnect cancels the subscription.
//
// Serve returns nil when the stream completed, the stream's error when it
// failed, and a CANCELLED error when ctx ended first.
func Serve[T any](ctx context.Context, w http.ResponseWriter, op stream.Operator[T], opts Options) error {
	opts.applyDefaults()
	log := logger.Get("sse").WithContext(ctx).WithFields(logger.Fields(logger.FieldClientID, opts.ClientID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return errors.Internal(fmt.Errorf("response writer does not implement http.Flusher"))
	}

	// SSE connections are long-lived and must not hit the server's
	// WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("could not disable write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanSSE, trace.WithAttributes(
		attribute.String(observability.AttrClientID, opts.ClientID),
		attribute.Int64(observability.AttrDemand, opts.Window),
	))
	defer span.End()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	fw := &frameWriter{w: w, flusher: flusher}
	fw.event(EventTypeConnected, "", mustJSON(ConnectedEvent{ClientID: opts.ClientID, Window: opts.Window}))
	if fw.err != nil {
		return errors.Cancelled(fw.err)
	}

	events := make(chan T, opts.Window)
	done := make(chan signal, 1)
	sub := op.Subscribe(
		func(v T) { events <- v },
		func(err error) { notify(done, signal{err: err}) },
		func() { notify(done, signal{}) },
	)
	defer sub.Cancel()

	// Demand is issued from its own goroutine: a source may emit
	// synchronously inside Request, or block there waiting for data, and
	// the loop below must keep writing and watching ctx meanwhile.
	d := newDemander(sub)
	defer d.stop()
	d.request(opts.Window)

	log.Debug("client connected", logger.Fields(logger.FieldDemand, opts.Window))

	var keepAlive <-chan time.Time
	if opts.KeepAlive > 0 {
		ticker := time.NewTicker(opts.KeepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	var written int64
	write := func(v T) error {
		data, err := opts.Encode(v)
		if err != nil {
			return errors.CallbackFailed("encode", err)
		}
		written++
		fw.event(EventTypeMessage, fmt.Sprint(written), data)
		return fw.err
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("reason", ctx.Err().Error()))
			return errors.Cancelled(ctx.Err())

		case v := <-events:
			if err := write(v); err != nil {
				return fail(ctx, fw, log, err)
			}
			d.request(1)

		case s := <-done:
			// Elements delivered before the terminal signal are still buffered.
			for drained := false; !drained; {
				select {
				case v := <-events:
					if err := write(v); err != nil {
						return fail(ctx, fw, log, err)
					}
				default:
					drained = true
				}
			}
			if s.err != nil {
				return fail(ctx, fw, log, s.err)
			}
			fw.event(EventTypeComplete, "", mustJSON(CompleteEvent{ClientID: opts.ClientID, Events: written}))
			observability.SetSpanAttribute(ctx, observability.AttrSignal, observability.SignalComplete)
			observability.SetSpanAttribute(ctx, "sse.events", written)
			log.Debug("stream completed", logger.Fields("events", written))
			return nil

		case <-keepAlive:
			fw.comment(fmt.Sprintf("keepalive %d", time.Now().Unix()))
			if fw.err != nil {
				return errors.Cancelled(fw.err)
			}
		}
	}
}

// demander forwards accumulated demand to a subscription from a single
// goroutine, coalescing units that arrive while a Request is in progress.
type demander struct {
	sub  stream.Subscription
	owed atomic.Int64
	wake chan struct{}
	quit chan struct{}
}

func newDemander(sub stream.Subscription) *demander {
	d := &demander{
		sub:  sub,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *demander) request(n int64) {
	d.owed.Add(n)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *demander) run() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
			if n := d.owed.Swap(0); n > 0 {
				d.sub.Request(n)
			}
		}
	}
}

func (d *demander) stop() { close(d.quit) }

func notify(done chan<- signal, s signal) {
	select {
	case done <- s:
	default:
	}
}

// fail writes the error frame and records the error on the span in ctx.
func fail(ctx context.Context, fw *frameWriter, log *logger.Logger, err error) error {
	observability.SetSpanError(ctx, err)
	observability.SetSpanAttribute(ctx, observability.AttrSignal, observability.SignalError)
	if fw.err == nil {
		fw.event(EventTypeError, "", mustJSON(errorPayload(err)))
	}
	log.Debug("stream failed", logger.MergeWithError(nil, err))
	return err
}

// errorPayload exposes an AppError as is and wraps anything else as
// UPSTREAM_FAILED, without leaking the cause.
func errorPayload(err error) *errors.AppError {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return errors.New(errors.ErrCodeUpstreamFailed, err.Error())
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

// frameWriter writes SSE frames and remembers the first write error.
type frameWriter struct {
	w       io.Writer
	flusher http.Flusher
	err     error
}

func (f *frameWriter) event(name, id string, data []byte) {
	if f.err != nil {
		return
	}
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(name)
	b.WriteByte('\n')
	if id != "" {
		b.WriteString("id: ")
		b.WriteString(id)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	f.write(b.String())
}

func (f *frameWriter) comment(text string) {
	if f.err != nil {
		return
	}
	f.write(": " + text + "\n\n")
}

func (f *frameWriter) write(s string) {
	if _, err := io.WriteString(f.w, s); err != nil {
		f.err = err
		return
	}
	f.flusher.Flush()
}
