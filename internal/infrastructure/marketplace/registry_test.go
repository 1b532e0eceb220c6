package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

type memMarketplaces struct {
	rows map[int64]*marketsync.Marketplace
	err  error
}

func (m *memMarketplaces) FindByID(_ context.Context, id int64) (*marketsync.Marketplace, error) {
	if m.err != nil {
		return nil, m.err
	}
	mp, ok := m.rows[id]
	if !ok {
		return nil, marketsync.ErrMarketplaceNotFound
	}
	cp := *mp
	return &cp, nil
}

func (m *memMarketplaces) FindByCode(_ context.Context, code marketsync.MarketplaceCode) (*marketsync.Marketplace, error) {
	for _, mp := range m.rows {
		if mp.Code == code {
			cp := *mp
			return &cp, nil
		}
	}
	return nil, marketsync.ErrMarketplaceNotFound
}

func (m *memMarketplaces) List(context.Context) ([]marketsync.Marketplace, error) { return nil, nil }

func (m *memMarketplaces) ListEnabled(context.Context) ([]marketsync.Marketplace, error) {
	return nil, nil
}

func (m *memMarketplaces) Save(_ context.Context, mp *marketsync.Marketplace) error {
	m.rows[mp.ID] = mp
	return nil
}

type plainOpener struct{}

func (plainOpener) Open(b []byte) ([]byte, error) { return b, nil }

func TestRegistry_ClientFor(t *testing.T) {
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &memMarketplaces{rows: map[int64]*marketsync.Marketplace{
		1: {ID: 1, Code: marketsync.MarketplaceTrendyol, Enabled: true, UpdatedAt: updated,
			Credentials: []byte(`{"supplier_id":"42","api_key":"k","api_secret":"s"}`)},
		2: {ID: 2, Code: marketsync.MarketplaceN11, Enabled: false, Credentials: []byte(`{"app_key":"a","app_secret":"s"}`)},
		3: {ID: 3, Code: marketsync.MarketplaceAmazon, Enabled: true, Credentials: []byte(`{"seller_id":"S1"}`)},
		4: {ID: 4, Code: marketsync.MarketplaceEbay, Enabled: true, BaseURL: "http://sandbox.ebay",
			Credentials: []byte(`{"client_id":"c","client_secret":"s"}`)},
	}}
	reg := NewRegistry(repo, plainOpener{}, Options{})
	ctx := context.Background()

	t.Run("builds and caches", func(t *testing.T) {
		first, err := reg.ClientFor(ctx, 1)
		require.NoError(t, err)
		assert.IsType(t, &TrendyolClient{}, first)
		assert.Equal(t, marketsync.MarketplaceTrendyol, first.Code())

		second, err := reg.ClientFor(ctx, 1)
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("rebuilds after a settings change", func(t *testing.T) {
		first, err := reg.ClientFor(ctx, 1)
		require.NoError(t, err)
		repo.rows[1].UpdatedAt = updated.Add(time.Hour)
		second, err := reg.ClientFor(ctx, 1)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := reg.ClientFor(ctx, 2)
		assert.ErrorIs(t, err, marketsync.ErrClientNotRegistered)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := reg.ClientFor(ctx, 99)
		assert.ErrorIs(t, err, marketsync.ErrClientNotRegistered)
	})

	t.Run("incomplete credentials", func(t *testing.T) {
		_, err := reg.ClientFor(ctx, 3)
		assert.ErrorIs(t, err, marketsync.ErrClientNotRegistered)
	})

	t.Run("row base url", func(t *testing.T) {
		c, err := reg.ClientFor(ctx, 4)
		require.NoError(t, err)
		eb, ok := c.(*EbayClient)
		require.True(t, ok)
		assert.Equal(t, "http://sandbox.ebay", eb.config.BaseURL)
		assert.Equal(t, 25, c.BatchSize())
	})

	t.Run("repository failure passes through", func(t *testing.T) {
		failing := NewRegistry(&memMarketplaces{err: errors.New("db down")}, plainOpener{}, Options{})
		_, err := failing.ClientFor(ctx, 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, marketsync.ErrClientNotRegistered)
	})
}

func TestParsers_ParserFor(t *testing.T) {
	for _, code := range marketsync.AllMarketplaceCodes() {
		p, err := Parsers{}.ParserFor(code)
		require.NoError(t, err, code)
		assert.NotNil(t, p)
	}
	_, err := Parsers{}.ParserFor("etsy")
	assert.ErrorIs(t, err, marketsync.ErrClientNotRegistered)
}
