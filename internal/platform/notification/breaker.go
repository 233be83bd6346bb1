package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSender guards a transport with a circuit breaker. After three
// consecutive failures sends fail fast until the open timeout elapses.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSender(name string, next Sender, openTimeout time.Duration, logger zerolog.Logger) *BreakerSender {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// A bad address is the caller's problem, not the transport's.
			return err == nil || err == ErrNoRecipient
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("notification circuit breaker state change")
		},
	})
	return &BreakerSender{next: next, cb: cb}
}

func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, msg)
	})
	return err
}

// State reports the breaker state for health output.
func (b *BreakerSender) State() gobreaker.State {
	return b.cb.State()
}
