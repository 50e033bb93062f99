package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/smoothsail/errors"
)

const (
	// replyPrefix starts the private message type a request's reply is sent to.
	replyPrefix = "_reply."
	// busComponentID owns subscriptions the bus creates for itself.
	busComponentID = "_bus"
	defaultSource  = "bus"
)

// Request publishes a message at High priority and waits for a reply sent
// with Respond. It fails with ErrRequestTimeout if none arrives in time.
func (b *Bus) Request(ctx context.Context, msgType string, payload any, timeout time.Duration, opts ...PublishOption) (any, error) {
	if timeout <= 0 {
		timeout = b.cfg.DefaultHandlerTimeout
	}

	correlationID := uuid.NewString()
	replyTo := replyPrefix + correlationID
	replies := make(chan *Message, 1)

	subID, err := b.Subscribe(busComponentID, replyTo, HandlerFunc(func(_ context.Context, msg *Message) (any, error) {
		if msg.CorrelationID != correlationID {
			return nil, nil
		}
		select {
		case replies <- msg:
		default:
		}
		return nil, nil
	}))
	if err != nil {
		return nil, errors.Wrap(err, "Bus", "Request", "reply subscription")
	}

	var once sync.Once
	release := func() {
		once.Do(func() { _ = b.Unsubscribe(subID) })
	}
	defer release()

	withSource := append([]PublishOption{WithSource(defaultSource)}, opts...)
	withSource = append(withSource,
		WithPriority(PriorityHigh),
		WithCorrelationID(correlationID),
		WithReplyTo(replyTo),
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if _, err := b.Publish(ctx, msgType, payload, withSource...); err != nil {
		return nil, errors.Wrap(err, "Bus", "Request", "publish request")
	}

	// An inline handler may have replied after the timer fired.
	select {
	case reply := <-replies:
		return reply.Payload, nil
	default:
	}

	select {
	case reply := <-replies:
		return reply.Payload, nil
	case <-timer.C:
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s after %s", errors.ErrRequestTimeout, msgType, timeout),
			"Bus", "Request", "awaiting reply")
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "Bus", "Request", "awaiting reply")
	}
}

// Respond publishes payload as the reply to original.
func (b *Bus) Respond(ctx context.Context, original *Message, payload any, opts ...PublishOption) (DeliveryResult, error) {
	if original == nil || original.ReplyTo == "" || original.CorrelationID == "" {
		return DeliveryResult{}, errors.WrapInvalid(errors.ErrNoReplyAddress, "Bus", "Respond", "reply address check")
	}

	all := append([]PublishOption{WithSource(defaultSource)}, opts...)
	all = append(all,
		WithPriority(PriorityHigh),
		WithCorrelationID(original.CorrelationID),
	)
	return b.Publish(ctx, original.ReplyTo, payload, all...)
}
