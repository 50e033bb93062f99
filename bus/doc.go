// Package bus implements an in-process priority message bus.
//
// Components subscribe to message types by wildcard pattern ("orders.*",
// "job.?") or regular expression and publish messages with a priority.
// Messages at or above the configured sync priority (High by default) are
// delivered inside Publish and the caller receives the real handler
// outcomes. Lower priorities are queued and delivered by a background loop,
// one message per tick, highest priority first and FIFO within a priority.
//
// Matching handlers run concurrently, highest handler priority first, each
// bounded by its own timeout. A message whose delivery fails on any handler
// is moved to the dead-letter list where it can be inspected or replayed.
//
// Basic usage:
//
//	b, err := bus.New(bus.DefaultConfig(), bus.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := b.Start(ctx); err != nil {
//		return err
//	}
//	defer b.Shutdown(context.Background())
//
//	_, err = b.Subscribe("billing", "orders.*", bus.HandlerFunc(
//		func(ctx context.Context, msg *bus.Message) (any, error) {
//			return nil, charge(ctx, msg.Payload)
//		}))
//
//	_, err = b.Publish(ctx, "orders.created", order, bus.WithSource("shop"))
//
// Request/response pairs a message with its reply through a correlation id:
//
//	reply, err := b.Request(ctx, "pricing.quote", req, 2*time.Second, bus.WithSource("shop"))
//
// The responder answers from its handler with b.Respond(ctx, msg, quote).
package bus
