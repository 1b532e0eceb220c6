package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meschain/marketsync/internal/domain/marketsync"
	"go.uber.org/zap"
)

// SecretOpener decrypts a sealed credential blob
type SecretOpener interface {
	Open(sealed []byte) ([]byte, error)
}

type registryEntry struct {
	client    marketsync.MarketplaceClient
	updatedAt time.Time
}

// Registry builds marketplace clients from configuration rows and caches
// them per marketplace id. A row whose UpdatedAt moved is rebuilt.
type Registry struct {
	repo   marketsync.MarketplaceRepository
	opener SecretOpener
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	clients map[int64]registryEntry
}

// NewRegistry creates a registry. opts supplies the timeout and HTTP client
// shared by all clients; the request budget is taken from each row.
func NewRegistry(repo marketsync.MarketplaceRepository, opener SecretOpener, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		repo:    repo,
		opener:  opener,
		opts:    opts,
		logger:  log.Named("marketplace-registry"),
		clients: make(map[int64]registryEntry),
	}
}

// ClientFor implements marketsync.ClientResolver
func (r *Registry) ClientFor(ctx context.Context, marketplaceID int64) (marketsync.MarketplaceClient, error) {
	mp, err := r.repo.FindByID(ctx, marketplaceID)
	if errors.Is(err, marketsync.ErrMarketplaceNotFound) {
		return nil, fmt.Errorf("%w: marketplace %d does not exist", marketsync.ErrClientNotRegistered, marketplaceID)
	}
	if err != nil {
		return nil, err
	}
	if !mp.Enabled {
		r.Invalidate(marketplaceID)
		return nil, fmt.Errorf("%w: %s is disabled", marketsync.ErrClientNotRegistered, mp.Code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[mp.ID]; ok && e.updatedAt.Equal(mp.UpdatedAt) {
		return e.client, nil
	}
	client, err := r.build(mp)
	if err != nil {
		r.logger.Warn("Cannot build marketplace client",
			zap.Int64("marketplace_id", mp.ID),
			zap.String("code", string(mp.Code)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", marketsync.ErrClientNotRegistered, mp.Code, err)
	}
	r.clients[mp.ID] = registryEntry{client: client, updatedAt: mp.UpdatedAt}
	return client, nil
}

// Invalidate drops the cached client of a marketplace
func (r *Registry) Invalidate(marketplaceID int64) {
	r.mu.Lock()
	delete(r.clients, marketplaceID)
	r.mu.Unlock()
}

func (r *Registry) build(mp *marketsync.Marketplace) (marketsync.MarketplaceClient, error) {
	raw, err := r.opener.Open(mp.Credentials)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	opts := r.opts
	opts.RequestsPerMinute = mp.EffectiveRateLimit()
	return NewClient(mp.Code, raw, mp.BaseURL, opts)
}

// NewClient decodes credentials for code and creates its client. baseURL,
// when set, is used unless the credentials carry their own.
func NewClient(code marketsync.MarketplaceCode, credentials []byte, baseURL string, opts Options) (marketsync.MarketplaceClient, error) {
	switch code {
	case marketsync.MarketplaceTrendyol:
		var cfg TrendyolConfig
		if err := decodeCredentials(credentials, &cfg); err != nil {
			return nil, err
		}
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, baseURL)
		return NewTrendyolClient(&cfg, opts)
	case marketsync.MarketplaceHepsiburada:
		var cfg HepsiburadaConfig
		if err := decodeCredentials(credentials, &cfg); err != nil {
			return nil, err
		}
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, baseURL)
		return NewHepsiburadaClient(&cfg, opts)
	case marketsync.MarketplaceN11:
		var cfg N11Config
		if err := decodeCredentials(credentials, &cfg); err != nil {
			return nil, err
		}
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, baseURL)
		return NewN11Client(&cfg, opts)
	case marketsync.MarketplaceAmazon:
		var cfg AmazonConfig
		if err := decodeCredentials(credentials, &cfg); err != nil {
			return nil, err
		}
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, baseURL)
		return NewAmazonClient(&cfg, opts)
	case marketsync.MarketplaceEbay:
		var cfg EbayConfig
		if err := decodeCredentials(credentials, &cfg); err != nil {
			return nil, err
		}
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, baseURL)
		return NewEbayClient(&cfg, opts)
	default:
		return nil, fmt.Errorf("unknown marketplace code %q", code)
	}
}

// Parsers resolves webhook parsers by marketplace code
type Parsers struct{}

// ParserFor returns the webhook parser of code
func (Parsers) ParserFor(code marketsync.MarketplaceCode) (marketsync.WebhookParser, error) {
	switch code {
	case marketsync.MarketplaceTrendyol:
		return TrendyolWebhookParser{}, nil
	case marketsync.MarketplaceHepsiburada:
		return HepsiburadaWebhookParser{}, nil
	case marketsync.MarketplaceN11:
		return N11WebhookParser{}, nil
	case marketsync.MarketplaceAmazon:
		return AmazonWebhookParser{}, nil
	case marketsync.MarketplaceEbay:
		return EbayWebhookParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", marketsync.ErrClientNotRegistered, code)
	}
}

var _ marketsync.ClientResolver = (*Registry)(nil)
