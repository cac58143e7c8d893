package database

import (
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testDBEnv struct {
	// when set, test databases are created here instead of the test's
	// temporary directory and survive the run for inspection
	Dir string `env:"TEST_DB_DIR"`
}

// TestDBPath resolves the location of a test database file. fallbackDir is
// normally t.TempDir().
func TestDBPath(fallbackDir, name string) string {
	cfg := testDBEnv{}
	if err := env.Parse(&cfg); err == nil && cfg.Dir != "" {
		return filepath.Join(cfg.Dir, name)
	}

	return filepath.Join(fallbackDir, name)
}

// ConnectAndInitializeTestDB opens a throwaway sqlite database with the
// production schema. Tests pass a path under t.TempDir().
func ConnectAndInitializeTestDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	return initialize(db, false)
}
