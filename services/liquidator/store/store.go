// Package store persists the loans the bot tracks so restarts do not lose
// sight of positions observed on the event stream.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackedLoan is one loan the bot watches. Amounts are decimal strings to
// preserve precision; the health factor is additionally kept as a clamped
// int64 so underwater loans can be selected in SQL.
type TrackedLoan struct {
	Borrower         string `gorm:"primaryKey"`
	Nonce            uint64 `gorm:"primaryKey"`
	BorrowedAmount   string
	BorrowedFrom     string `gorm:"index"`
	CollateralAmount string
	CollateralFrom   string
	HealthFactor     string
	HealthFactorFP   int64 `gorm:"index"`
	UpdatedAt        time.Time
}

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at path. Use
// "file::memory:?cache=shared" for an in-memory store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&TrackedLoan{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Upsert inserts or refreshes a tracked loan.
func (s *Store) Upsert(loan *TrackedLoan) error {
	loan.UpdatedAt = time.Now()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "borrower"}, {Name: "nonce"}},
		UpdateAll: true,
	}).Create(loan).Error
}

// Delete drops a loan from tracking, e.g. after it was closed.
func (s *Store) Delete(borrower string, nonce uint64) error {
	return s.db.Delete(&TrackedLoan{}, "borrower = ? AND nonce = ?", borrower, nonce).Error
}

// All returns every tracked loan.
func (s *Store) All() ([]TrackedLoan, error) {
	var loans []TrackedLoan
	if err := s.db.Order("borrower, nonce").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// Underwater returns loans whose clamped health factor sits below threshold.
func (s *Store) Underwater(threshold int64) ([]TrackedLoan, error) {
	var loans []TrackedLoan
	if err := s.db.Where("health_factor_fp < ?", threshold).Order("health_factor_fp").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}
