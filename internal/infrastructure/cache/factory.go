package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
)

// DedupeStoreFactory picks a dedupe store from configuration
type DedupeStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DedupeStoreFactoryOption configures the factory
type DedupeStoreFactoryOption func(*DedupeStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DedupeStoreFactoryOption {
	return func(f *DedupeStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to memory.
// Default is true.
func WithInMemoryFallback(allow bool) DedupeStoreFactoryOption {
	return func(f *DedupeStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDedupeStoreFactory creates a factory
func NewDedupeStoreFactory(cfg config.RedisConfig, opts ...DedupeStoreFactoryOption) *DedupeStoreFactory {
	f := &DedupeStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stores are the shared-state stores picked by the factory
type Stores struct {
	Dedupe appsync.DedupeStore
	// Redis is the connected client, nil when the stores live in memory
	Redis  *redis.Client
	closer io.Closer
}

// Close releases the stores
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open connects to Redis when it is configured and reachable, otherwise it
// falls back to memory if allowed
func (f *DedupeStoreFactory) Open(ctx context.Context) (*Stores, error) {
	if f.redisConfig.Host == "" {
		f.logger.Info("redis not configured, using in-memory webhook dedupe store")
		mem := NewMemoryDedupeStore(0)
		return &Stores{Dedupe: mem, closer: mem}, nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("using redis webhook dedupe store", zap.String("addr", f.redisConfig.Addr()))
		return &Stores{Dedupe: NewRedisDedupeStore(client, ""), Redis: client, closer: client}, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for webhook dedupe but unavailable: %w", err)
	}

	f.logger.Warn("redis unavailable, falling back to in-memory webhook dedupe store; "+
		"duplicate deliveries across instances will not be detected",
		zap.Error(err),
	)
	mem := NewMemoryDedupeStore(0)
	return &Stores{Dedupe: mem, closer: mem}, nil
}

// Create returns only the dedupe store of Open and its closer
func (f *DedupeStoreFactory) Create(ctx context.Context) (appsync.DedupeStore, io.Closer, error) {
	stores, err := f.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stores.Dedupe, stores, nil
}
