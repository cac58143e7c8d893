package database

import (
	"evm-contract-indexer/config"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const tcp = "tcp"

var (
	// List entities to auto-migrate
	entities = []interface{}{
		State{},
		Block{},
		Transaction{},
		Event{},
		FunctionCall{},
		Contract{},
	}
	DBTransactionBatchesSize = 1000
)

func ConnectAndInitialize(cfg *config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("ConnectAndInitialize: Connect: %w", err)
	}

	return initialize(db, cfg.DropTableAtStart)
}

func initialize(db *gorm.DB, dropTablesAtStart bool) (*gorm.DB, error) {
	if dropTablesAtStart {
		err := db.Migrator().DropTable(entities...)
		if err != nil {
			return nil, err
		}
	}

	// Initialize - auto migrate
	err := db.AutoMigrate(entities...)
	if err != nil {
		return nil, errors.Wrap(err, "ConnectAndInitialize: AutoMigrate")
	}

	if err := seedStates(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	// Connect to the database
	dbConfig := mysql.Config{
		User:                 cfg.Username,
		Passwd:               cfg.Password,
		Net:                  tcp,
		Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		AllowNativePasswords: true,
		ParseTime:            true,
	}

	gormLogLevel := getGormLogLevel(cfg)
	gormConfig := gorm.Config{
		Logger:          gormlogger.Default.LogMode(gormLogLevel),
		CreateBatchSize: DBTransactionBatchesSize,
	}
	return gorm.Open(gormMysql.Open(dbConfig.FormatDSN()), &gormConfig)
}

func getGormLogLevel(cfg *config.DBConfig) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}

// UpsertContracts seeds the contract registry from the configured tracked
// set. Re-running with the same config is a no-op apart from name changes.
func UpsertContracts(db *gorm.DB, contracts []Contract) error {
	if len(contracts) == 0 {
		return nil
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "is_active"}),
	}).Create(&contracts).Error

	return errors.Wrap(err, "UpsertContracts")
}
