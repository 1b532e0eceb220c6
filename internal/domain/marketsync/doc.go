// Package marketsync contains the domain model of the marketplace synchronization engine.
//
// The engine moves products, stock levels, prices and order statuses between the local
// catalog/order store and external marketplaces. Work is modelled as durable queue items
// that are drained by tiered scheduler runs:
//
//   - SyncQueueItem: one outstanding unit of work per entity, marketplace and operation
//   - EntityMapping: binding between a local id and the marketplace-side id
//   - EventLogEntry: append-only audit row for every sync attempt
//   - StatusMapping: explicit local/remote status vocabulary per marketplace
//   - TierLock: same-tier overlap guard and last-run watermark
//
// Marketplace protocols are hidden behind the MarketplaceClient port; adapters live in
// infrastructure/marketplace and are resolved per marketplace through ClientResolver.
//
// Ports & Adapters:
//
//	┌────────────────────────────┐        ┌──────────────────────────────┐
//	│ application/marketsync     │ ─────► │ MarketplaceClient (port)     │
//	│ Worker, QueueService,      │        └──────────────┬───────────────┘
//	│ StatusMapper, EventLog     │                       │
//	└─────────────┬──────────────┘        ┌──────────────▼───────────────┐
//	              │                       │ trendyol, hepsiburada, n11,  │
//	              ▼                       │ amazon, ebay adapters        │
//	  repositories (persistence)          └──────────────────────────────┘
package marketsync
