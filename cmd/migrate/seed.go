package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meschain/marketsync/internal/domain/marketsync"
)

// SeedFile is the YAML document read by `migrate seed`:
//
//	marketplaces:
//	  - code: trendyol
//	    display_name: Trendyol
//	    enabled: true
//	    credentials: {supplier_id: "1234", api_key: "k", api_secret: "s"}
//	    webhook_secret: whsec
//	    status_mappings:
//	      - {local: shipped, remote: Shipped}
type SeedFile struct {
	Marketplaces []SeedMarketplace `yaml:"marketplaces"`
}

// SeedMarketplace is one marketplace of a seed file
type SeedMarketplace struct {
	Code               string         `yaml:"code"`
	DisplayName        string         `yaml:"display_name"`
	Enabled            bool           `yaml:"enabled"`
	BaseURL            string         `yaml:"base_url"`
	RateLimitPerMinute int            `yaml:"rate_limit_per_minute"`
	Credentials        map[string]any `yaml:"credentials"`
	WebhookSecret      string         `yaml:"webhook_secret"`
	StatusMappings     []SeedStatus   `yaml:"status_mappings"`
}

// SeedStatus is a local/remote order status pair
type SeedStatus struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// ParseSeed decodes and validates a seed document
func ParseSeed(r io.Reader) (*SeedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file SeedFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	seen := map[marketsync.MarketplaceCode]bool{}
	for i := range file.Marketplaces {
		mp := &file.Marketplaces[i]
		code := marketsync.MarketplaceCode(strings.ToLower(strings.TrimSpace(mp.Code)))
		if !code.IsValid() {
			return nil, fmt.Errorf("marketplaces[%d]: unknown code %q", i, mp.Code)
		}
		if seen[code] {
			return nil, fmt.Errorf("marketplaces[%d]: %s listed twice", i, code)
		}
		seen[code] = true
		mp.Code = string(code)
		if mp.RateLimitPerMinute < 0 {
			return nil, fmt.Errorf("%s: rate_limit_per_minute cannot be negative", code)
		}
		for j, st := range mp.StatusMappings {
			if strings.TrimSpace(st.Local) == "" || strings.TrimSpace(st.Remote) == "" {
				return nil, fmt.Errorf("%s: status_mappings[%d] needs local and remote", code, j)
			}
		}
	}
	return &file, nil
}

// MarketplaceSaver upserts marketplaces by code
type MarketplaceSaver interface {
	Save(ctx context.Context, m *marketsync.Marketplace) error
}

// StatusPairSaver stores both directions of a status translation
type StatusPairSaver interface {
	SavePair(ctx context.Context, marketplaceID int64, local, remote string) error
}

// Sealer encrypts secrets before they are stored
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
}

// SeedResult counts what a seed wrote
type SeedResult struct {
	Marketplaces int
	StatusPairs  int
}

// ApplySeed writes the seed document. Credentials are stored as sealed JSON,
// the shape the marketplace clients decode.
func ApplySeed(ctx context.Context, file *SeedFile, marketplaces MarketplaceSaver, statuses StatusPairSaver, sealer Sealer, log *zap.Logger) (*SeedResult, error) {
	res := &SeedResult{}
	for _, entry := range file.Marketplaces {
		mp := &marketsync.Marketplace{
			Code:               marketsync.MarketplaceCode(entry.Code),
			DisplayName:        entry.DisplayName,
			Enabled:            entry.Enabled,
			BaseURL:            entry.BaseURL,
			RateLimitPerMinute: entry.RateLimitPerMinute,
		}
		if mp.DisplayName == "" {
			mp.DisplayName = entry.Code
		}
		if len(entry.Credentials) > 0 {
			raw, err := json.Marshal(entry.Credentials)
			if err != nil {
				return res, fmt.Errorf("%s: encode credentials: %w", entry.Code, err)
			}
			if mp.Credentials, err = sealer.Seal(raw); err != nil {
				return res, fmt.Errorf("%s: seal credentials: %w", entry.Code, err)
			}
		}
		if entry.WebhookSecret != "" {
			sealed, err := sealer.Seal([]byte(entry.WebhookSecret))
			if err != nil {
				return res, fmt.Errorf("%s: seal webhook secret: %w", entry.Code, err)
			}
			mp.WebhookSecret = sealed
		}

		if err := marketplaces.Save(ctx, mp); err != nil {
			return res, fmt.Errorf("%s: save marketplace: %w", entry.Code, err)
		}
		res.Marketplaces++

		for _, st := range entry.StatusMappings {
			if err := statuses.SavePair(ctx, mp.ID, st.Local, st.Remote); err != nil {
				return res, fmt.Errorf("%s: save status pair %s/%s: %w", entry.Code, st.Local, st.Remote, err)
			}
			res.StatusPairs++
		}
		log.Info("Seeded marketplace",
			zap.String("code", entry.Code),
			zap.Int64("marketplace_id", mp.ID),
			zap.Bool("enabled", mp.Enabled),
			zap.Int("status_pairs", len(entry.StatusMappings)),
		)
	}
	return res, nil
}
