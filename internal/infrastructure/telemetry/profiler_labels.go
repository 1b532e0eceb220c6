package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	LabelTier        = "tier"
	LabelMarketplace = "marketplace"
	LabelEntityType  = "entity_type"
	LabelTask        = "task"
	LabelRoute       = "route"
	LabelMethod      = "method"
)

const maxLabelValueLength = 128

// highCardinalityLabels are dropped so per-entity identifiers never explode
// the profile series count
var highCardinalityLabels = map[string]bool{
	"local_entity_id": true,
	"remote_id":       true,
	"queue_item_id":   true,
	"request_id":      true,
	"run_id":          true,
	"trace_id":        true,
	"span_id":         true,
}

// WithProfilingLabels runs fn with pprof labels that Pyroscope uses to slice
// profiles, e.g. by tier and marketplace
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// SyncLabels builds the label set for a sync unit of work. Empty values are
// omitted.
func SyncLabels(tier, marketplace, entityType string) map[string]string {
	labels := make(map[string]string, 3)
	if tier != "" {
		labels[LabelTier] = tier
	}
	if marketplace != "" {
		labels[LabelMarketplace] = marketplace
	}
	if entityType != "" {
		labels[LabelEntityType] = entityType
	}
	return labels
}

// sanitizeLabels returns key/value pairs sorted by key, without empty or
// high-cardinality entries
func sanitizeLabels(labels map[string]string) []string {
	clean := make(map[string]string, len(labels))
	for k, v := range labels {
		key := sanitizeLabelKey(k)
		if key == "" || v == "" || highCardinalityLabels[key] {
			continue
		}
		clean[key] = truncateLabel(v)
	}
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, clean[k])
	}
	return pairs
}

// sanitizeLabelKey lowercases key and keeps [a-z0-9_]
func sanitizeLabelKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func truncateLabel(v string) string {
	if len(v) > maxLabelValueLength {
		return v[:maxLabelValueLength]
	}
	return v
}
