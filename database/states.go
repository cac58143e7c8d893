package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// LastIndexedBlockState is the authoritative cursor: the last block
	// whose data is durably committed. Written only after a successful
	// range commit, in the same transaction.
	LastIndexedBlockState string = "last_indexed_block"

	// LastChainBlockState mirrors the most recently observed head height.
	// Informational.
	LastChainBlockState string = "last_chain_block"

	// FirstIndexedBlockState is the lowest block still present in the DB,
	// maintained by retention cleanup. Informational.
	FirstIndexedBlockState string = "first_indexed_block"
)

var StateKeys = []string{
	FirstIndexedBlockState,
	LastIndexedBlockState,
	LastChainBlockState,
}

// State is a single indexer_state row, a durable key->value pair.
type State struct {
	BaseEntity
	Key     string    `gorm:"column:key;type:varchar(50);uniqueIndex"`
	Value   uint64    `gorm:"column:value"`
	Updated time.Time `gorm:"column:updated_at"`
}

func (State) TableName() string {
	return "indexer_state"
}

func (s *State) UpdateValue(value uint64) {
	s.Value = value
	s.Updated = time.Now()
}

func FetchState(db *gorm.DB, key string) (State, error) {
	var state State
	err := db.Where(&State{Key: key}).First(&state).Error
	if err != nil {
		return State{}, errors.Wrap(err, "FetchState")
	}
	return state, nil
}

// UpsertState writes the value for key, creating the row if needed. Callers
// that need atomicity with other writes pass their transaction handle.
func UpsertState(db *gorm.DB, key string, value uint64) error {
	state := State{Key: key}
	state.UpdateValue(value)

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error

	return errors.Wrap(err, "UpsertState")
}

// seedStates creates any missing state rows with a zero value so that reads
// never hit a missing-row case during normal operation.
func seedStates(db *gorm.DB) error {
	for _, key := range StateKeys {
		var state State
		err := db.Where(&State{Key: key}).First(&state).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "seedStates")
		}

		s := State{Key: key}
		s.UpdateValue(0)
		if err := db.Create(&s).Error; err != nil {
			return errors.Wrap(err, "seedStates: Create")
		}
	}

	return nil
}
