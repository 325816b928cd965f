package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes BreakerSender.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// BreakerSender stops calling a failing transport until it recovers.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSender wraps next with a circuit breaker.
func NewBreakerSender(next Sender, settings BreakerSettings, logger *zap.Logger) *BreakerSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Name == "" {
		settings.Name = "notify"
	}
	threshold := settings.FailureThreshold
	return &BreakerSender{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        settings.Name,
			MaxRequests: settings.MaxRequests,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			// Recipient errors do not reflect transport health.
			IsSuccessful: func(err error) bool {
				return err == nil || IsRecipientError(err)
			},
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("notification circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

// Send forwards env through the breaker. An open breaker yields gobreaker.ErrOpenState.
// Recipient errors are returned unchanged but count as successes.
func (b *BreakerSender) Send(ctx context.Context, env Envelope) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, env)
	})
	return err
}

// State reports the breaker state.
func (b *BreakerSender) State() gobreaker.State {
	return b.breaker.State()
}
