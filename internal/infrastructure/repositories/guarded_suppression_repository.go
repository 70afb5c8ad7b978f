package repositories

import (
	"context"
	"errors"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
	"devstream/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// guardedSuppressionRepository stops calling a failing remote store for a
// cooldown. Rejected calls surface as errors, which the chat service
// treats as "not suppressed".
type guardedSuppressionRepository struct {
	next    ports.SuppressionRepository
	breaker *circuitbreaker.Breaker
}

func newGuardedSuppressionRepository(next ports.SuppressionRepository, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *guardedSuppressionRepository {
	breaker := circuitbreaker.New(cfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("suppression store breaker changed state", "from", from.String(), "to", to.String())
	})
	return &guardedSuppressionRepository{next: next, breaker: breaker}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrSuppressionNotFound)
}

func (g *guardedSuppressionRepository) Put(ctx context.Context, s *domain.Suppression) error {
	return g.breaker.Do(func() error { return g.next.Put(ctx, s) }, nil)
}

func (g *guardedSuppressionRepository) Get(ctx context.Context, persistentID string) (*domain.Suppression, error) {
	var s *domain.Suppression
	err := g.breaker.Do(func() error {
		var err error
		s, err = g.next.Get(ctx, persistentID)
		return err
	}, isNotFound)
	return s, err
}
