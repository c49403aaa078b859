package ledger

import (
	"context"

	"ingest/internal/config"
	"ingest/internal/notification"
	"ingest/pkg/circuitbreaker"
	"ingest/pkg/errors"
)

// CircuitBreakerLedger fails fast while the backing store is unhealthy. With
// the breaker disabled it passes calls straight through.
type CircuitBreakerLedger struct {
	ledger Ledger
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerLedger(l Ledger, cfg config.CircuitBreakerConfig, name string) *CircuitBreakerLedger {
	if !cfg.Enabled {
		return &CircuitBreakerLedger{ledger: l}
	}
	return &CircuitBreakerLedger{
		ledger: l,
		cb:     circuitbreaker.NewWrapper(circuitbreaker.FromConfig("ledger-"+name, cfg)),
	}
}

func (l *CircuitBreakerLedger) Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error) {
	entry, err := circuitbreaker.Do(ctx, l.cb, func() (*Entry, error) {
		return l.ledger.Lookup(ctx, id)
	})
	return entry, asLedgerIO(err)
}

func (l *CircuitBreakerLedger) Record(ctx context.Context, entry Entry) error {
	_, err := circuitbreaker.Do(ctx, l.cb, func() (struct{}, error) {
		return struct{}{}, l.ledger.Record(ctx, entry)
	})
	return asLedgerIO(err)
}

// Count delegates to the wrapped ledger when it supports counting.
func (l *CircuitBreakerLedger) Count(ctx context.Context) (int, error) {
	c, ok := l.ledger.(Counter)
	if !ok {
		return 0, errors.ErrNotFound.WithMessage("ledger backend does not support counting")
	}
	n, err := c.Count(ctx)
	return n, asLedgerIO(err)
}

func (l *CircuitBreakerLedger) State() string {
	if l.cb == nil {
		return "disabled"
	}
	return l.cb.State().String()
}

// asLedgerIO classifies breaker rejections, which carry no code of their
// own, as ledger IO errors.
func asLedgerIO(err error) error {
	if err == nil || errors.Code(err) != errors.ErrInternal.Code {
		return err
	}
	return errors.Wrap(err, errors.ErrLedgerIO)
}
