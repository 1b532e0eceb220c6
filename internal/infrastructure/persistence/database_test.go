package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newSQLiteTestDB opens a migrated in-memory database
func newSQLiteTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// newPostgresMockDB wires GORM's postgres dialect to sqlmock
func newPostgresMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = mockDB.Close() })
	return gormDB, mock, mockDB
}

func TestNewDatabase_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.db")
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: path}, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.False(t, db.IsPostgres())
	require.NoError(t, db.AutoMigrate())
	require.NoError(t, db.Ping())

	for _, table := range []string{"marketplaces", "entity_mappings", "sync_queue", "sync_event_log", "status_mappings", "tier_locks", "local_entity_changes", "marketplace_orders", "marketplace_categories"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
	assert.True(t, db.DB.Migrator().HasIndex("sync_queue", "idx_sync_queue_active_key"))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestIsPostgres_MockDialect(t *testing.T) {
	db, _, _ := newPostgresMockDB(t)
	assert.True(t, isPostgres(db))
	assert.True(t, (&Database{DB: db}).IsPostgres())
}
