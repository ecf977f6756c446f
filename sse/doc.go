// Package sse writes push streams to HTTP clients as Server-Sent Events.
//
// Serve drains a stream.Operator into a response with a bounded demand
// window: it requests Window elements up front and one more for every event
// it writes, so a slow client slows the producer instead of growing a
// buffer. The stream ends with a "complete" or "error" frame; a client
// disconnect cancels the subscription.
//
// # Usage
//
//	router.GET("/events", sse.Handler(func(c *gin.Context) (stream.Operator[Event], error) {
//	    return events.Since(c.Query("since")), nil
//	}, sse.HandlerOptions{Name: "events", Options: sse.Options{Window: 32}}))
//
// Frames look like:
//
//	event: message
//	id: 1
//	data: {"id":"..."}
package sse
