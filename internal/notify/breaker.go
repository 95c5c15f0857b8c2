package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Breaker stops calling a failing provider for a while, so a dead email API
// costs one fast error per candidate instead of a timeout.
type Breaker struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(name string, next Notifier, maxFailures uint32, openTimeout time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifier-" + name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("notifier circuit breaker state changed")
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, to string, kind Kind, data map[string]any) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, to, kind, data)
	})
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Status describes a notifier for the doctor command: the circuit state for a
// provider behind a breaker, "direct" otherwise.
func Status(n Notifier) string {
	if b, ok := n.(*Breaker); ok {
		return "circuit " + b.State().String()
	}
	return "direct"
}

var _ Notifier = (*Breaker)(nil)
