package marketsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// StatusMapper translates order statuses between the local vocabulary and each
// marketplace's. Unknown statuses are never guessed.
type StatusMapper struct {
	repo marketsync.StatusMappingRepository
}

// NewStatusMapper creates a new StatusMapper
func NewStatusMapper(repo marketsync.StatusMappingRepository) *StatusMapper {
	return &StatusMapper{repo: repo}
}

// ToRemote returns the marketplace status of a local one, or
// ErrStatusNotConfigured
func (m *StatusMapper) ToRemote(ctx context.Context, marketplaceID int64, local string) (string, error) {
	return m.translate(ctx, marketplaceID, marketsync.StatusOutbound, local)
}

// ToLocal returns the local status of a marketplace one, or
// ErrStatusNotConfigured
func (m *StatusMapper) ToLocal(ctx context.Context, marketplaceID int64, remote string) (string, error) {
	return m.translate(ctx, marketplaceID, marketsync.StatusInbound, remote)
}

func (m *StatusMapper) translate(ctx context.Context, marketplaceID int64, dir marketsync.StatusDirection, status string) (string, error) {
	if strings.TrimSpace(status) == "" {
		return "", fmt.Errorf("%w: empty %s status", marketsync.ErrStatusNotConfigured, dir)
	}
	row, err := m.repo.Find(ctx, marketplaceID, dir, status)
	if err != nil {
		return "", err
	}
	return row.TargetStatus, nil
}

// SavePair stores both directions of a translation
func (m *StatusMapper) SavePair(ctx context.Context, marketplaceID int64, local, remote string) error {
	local, remote = strings.TrimSpace(local), strings.TrimSpace(remote)
	if local == "" || remote == "" {
		return &marketsync.ValidationError{Message: "local and remote status are required"}
	}
	if marketplaceID <= 0 {
		return &marketsync.ValidationError{Message: "marketplace id is required"}
	}
	return m.repo.SavePair(ctx, marketplaceID, local, remote)
}

// List returns the translations configured for a marketplace
func (m *StatusMapper) List(ctx context.Context, marketplaceID int64) ([]marketsync.StatusMapping, error) {
	return m.repo.ListByMarketplace(ctx, marketplaceID)
}
