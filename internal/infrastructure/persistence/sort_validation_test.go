package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "DESC"},
		{"asc", "ASC"},
		{"  ASC ", "ASC"},
		{"desc", "DESC"},
		{"ASC; DROP TABLE sync_queue;--", "DESC"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ValidateSortOrder(tt.input), "input %q", tt.input)
	}
}

func TestOrderClause_RejectsUnknownFields(t *testing.T) {
	payloads := []string{
		"created_at; DROP TABLE sync_queue;--",
		"status' OR '1'='1",
		"retry_count UNION SELECT * FROM marketplaces",
		"STATUS",
	}
	for _, payload := range payloads {
		assert.Equal(t, "created_at DESC", orderClause(payload, "", SyncQueueSortFields, "created_at"))
	}

	assert.Equal(t, "retry_count ASC", orderClause(" retry_count ", "asc", SyncQueueSortFields, "created_at"))
	assert.Equal(t, "last_sync_at DESC", orderClause("last_sync_at", "", EntityMappingSortFields, "updated_at"))
}

func TestPaginate(t *testing.T) {
	db := newSQLiteTestDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Table("sync_queue").Scopes(paginate(0, 1000)).Find(&[]map[string]any{})
	})
	assert.Contains(t, sql, "LIMIT 200")
	assert.NotContains(t, sql, "OFFSET")

	sql = db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Table("sync_queue").Scopes(paginate(3, 0)).Find(&[]map[string]any{})
	})
	assert.Contains(t, sql, "LIMIT 20 OFFSET 40")
}
