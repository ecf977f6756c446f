// Package stream is a push-based reactive stream engine with bounded demand.
//
// A consumer subscribes to an Operator and receives a Subscription. Nothing
// flows until Request(n) is called; at most n elements are then delivered,
// followed by at most one terminal signal (error or completion). Cancel is
// cooperative and idempotent. Request(MaxDemand) means unbounded demand.
//
// Structural operators:
//
//   - OnEmptySwitch continues with a fallback source when the primary
//     completes without emitting. Demand requested before the switch is
//     carried over by a ProxySubscription.
//   - Concat emits each source in order, subscribing to the next only after
//     the previous completes.
//
// Sources (FromSlice, Of, Range, Empty, Fail, Defer, FromIterator),
// transforms (Map, Filter, Peek) and terminals (Collect, ForEach, First)
// make the engine usable end to end. ToIterator bridges the other way, into
// a pull Iterator.
//
// # Usage
//
//	op := stream.OnEmptySwitch(
//	    stream.Concat(cached, live),
//	    func() stream.Operator[Event] { return stream.Of(placeholder) },
//	)
//	events, err := stream.Collect(ctx, stream.Observe(ctx, "events", op, metrics))
//
// Emission for one subscription is serialized: callbacks never run
// concurrently with each other, though they may run on any goroutine that
// calls Request. A panic in onNext is recovered and delivered to onError as
// CALLBACK_FAILED, and the producer is cancelled.
package stream
