package repositories

import (
	"context"

	"devstream/internal/core/ports"
	"devstream/internal/infrastructure/repositories/memory"
	redisrepo "devstream/internal/infrastructure/repositories/redis"
	"devstream/pkg/circuitbreaker"
	"devstream/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support. Rooms are
// always process-local because they reference live connections; the
// suppression list moves to Redis when it is configured and reachable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis suppression store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// UsesRedis reports whether Redis-backed repositories are handed out.
func (f *RepositoryFactory) UsesRedis() bool {
	return f.useRedis && f.redisClient != nil
}

func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	return memory.NewMemoryRoomRepository()
}

func (f *RepositoryFactory) CreateSuppressionRepository() ports.SuppressionRepository {
	if f.UsesRedis() {
		return newGuardedSuppressionRepository(
			redisrepo.NewRedisSuppressionRepository(f.redisClient),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemorySuppressionRepository()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		err := redisrepo.CloseRedisClient(f.redisClient)
		f.redisClient = nil
		return err
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsesRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
