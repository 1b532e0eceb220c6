package persistence

import (
	"strings"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// orderClause builds a whitelisted ORDER BY expression
func orderClause(sortField, sortOrder string, allowedFields map[string]bool, defaultField string) string {
	return ValidateSortField(sortField, allowedFields, defaultField) + " " + ValidateSortOrder(sortOrder)
}

// paginate applies 1-based page numbers with a bounded page size
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		switch {
		case pageSize <= 0:
			pageSize = defaultPageSize
		case pageSize > maxPageSize:
			pageSize = maxPageSize
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

// SyncQueueSortFields contains allowed sort fields for the queue listing
var SyncQueueSortFields = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"started_at":   true,
	"completed_at": true,
	"status":       true,
	"tier":         true,
	"retry_count":  true,
	"entity_type":  true,
}

// EntityMappingSortFields contains allowed sort fields for the mapping listing
var EntityMappingSortFields = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"last_sync_at":    true,
	"sync_status":     true,
	"local_entity_id": true,
	"marketplace_id":  true,
}
