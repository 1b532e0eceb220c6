package marketsync

import (
	"sort"
)

// MarketplaceCounts aggregates item outcomes of one marketplace
type MarketplaceCounts struct {
	MarketplaceID int64  `json:"marketplace_id"`
	Marketplace   string `json:"marketplace"`
	Processed     int    `json:"processed"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	Retried       int    `json:"retried"`
	Released      int    `json:"released"`
}

// BatchSummary collects per-marketplace counts over one or more batches
type BatchSummary struct {
	byMarketplace map[int64]*MarketplaceCounts
}

// NewBatchSummary creates an empty summary
func NewBatchSummary() *BatchSummary {
	return &BatchSummary{byMarketplace: make(map[int64]*MarketplaceCounts)}
}

func (s *BatchSummary) counts(marketplaceID int64, name string) *MarketplaceCounts {
	c, ok := s.byMarketplace[marketplaceID]
	if !ok {
		c = &MarketplaceCounts{MarketplaceID: marketplaceID, Marketplace: name}
		s.byMarketplace[marketplaceID] = c
	}
	if c.Marketplace == "" {
		c.Marketplace = name
	}
	return c
}

// Add counts one item outcome
func (s *BatchSummary) Add(marketplaceID int64, name, outcome string) {
	c := s.counts(marketplaceID, name)
	c.Processed++
	switch outcome {
	case OutcomeSucceeded:
		c.Succeeded++
	case OutcomeFailed:
		c.Failed++
	case OutcomeRetried:
		c.Retried++
	case OutcomeReleased:
		c.Released++
	}
}

// Merge adds the counts of other
func (s *BatchSummary) Merge(other *BatchSummary) {
	if other == nil {
		return
	}
	for id, oc := range other.byMarketplace {
		c := s.counts(id, oc.Marketplace)
		c.Processed += oc.Processed
		c.Succeeded += oc.Succeeded
		c.Failed += oc.Failed
		c.Retried += oc.Retried
		c.Released += oc.Released
	}
}

// Marketplaces returns the counts ordered by marketplace id
func (s *BatchSummary) Marketplaces() []MarketplaceCounts {
	out := make([]MarketplaceCounts, 0, len(s.byMarketplace))
	for _, c := range s.byMarketplace {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketplaceID < out[j].MarketplaceID })
	return out
}

// For returns the counts of one marketplace (zero value if none)
func (s *BatchSummary) For(marketplaceID int64) MarketplaceCounts {
	if c, ok := s.byMarketplace[marketplaceID]; ok {
		return *c
	}
	return MarketplaceCounts{MarketplaceID: marketplaceID}
}

// Total sums the counts of every marketplace
func (s *BatchSummary) Total() MarketplaceCounts {
	var t MarketplaceCounts
	for _, c := range s.byMarketplace {
		t.Processed += c.Processed
		t.Succeeded += c.Succeeded
		t.Failed += c.Failed
		t.Retried += c.Retried
		t.Released += c.Released
	}
	return t
}
