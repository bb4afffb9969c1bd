// Package testutil opens throwaway SQLite databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"appdownloader/config"
	"appdownloader/database"
	"appdownloader/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const TestSecret = "test-secret-key"

// NewDB returns a migrated and seeded database in t.TempDir(). It also configures the token
// secret and installs the database as database.DB for handlers; the previous value is restored
// on cleanup.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.Log.SetLevel(logrus.WarnLevel)
	utils.ConfigureTokens(TestSecret, "")

	db, err := database.Open(config.Database{
		Driver:         "sqlite",
		DSN:            filepath.Join(t.TempDir(), "test.db"),
		ConnectRetries: 1,
		PingOnConnect:  true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedTaxonomy(db, database.ParseTaxonomy(config.DefaultTaxonomy)))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewStore installs a LocalStore in a temp dir as utils.Storage.
func NewStore(t *testing.T) *utils.LocalStore {
	t.Helper()
	store, err := utils.NewLocalStore(filepath.Join(t.TempDir(), "media"), "/media/")
	require.NoError(t, err)
	prev := utils.Storage
	utils.Storage = store
	t.Cleanup(func() { utils.Storage = prev })
	return store
}
