package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects to dsn, picking the postgres driver for a normal connection
// string and the pure-Go glebarez/sqlite driver for sqlite: / file: DSNs, the
// same dual-driver split the teacher's test suite uses against its
// postgres-backed production gorm.Open call.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, "sqlite:") {
		return gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	}
	return gorm.Open(postgres.Open(dsn), cfg)
}

// dailyCounter tracks the next sequence number issued for a given calendar
// day, used to mint case numbers shaped CASE-YYYYMMDD-NNNN (spec.md §3).
type dailyCounter struct {
	DateKey string `gorm:"primaryKey;size:8"`
	NextSeq int    `gorm:"not null"`
}

// AutoMigrateCounter migrates the sequence table. Called alongside
// AutoMigrate since it backs case-number issuance rather than domain data.
func AutoMigrateCounter(db *gorm.DB) error {
	return db.AutoMigrate(&dailyCounter{})
}

// NextCaseNumber mints the next CASE-YYYYMMDD-NNNN case number for today,
// serializing concurrent callers with a locked read-modify-write on the
// per-day counter row, the same row-locking discipline the teacher applies
// to invoice state transitions.
func NextCaseNumber(db *gorm.DB, now time.Time) (string, error) {
	dateKey := now.UTC().Format("20060102")
	var caseNumber string
	err := db.Transaction(func(tx *gorm.DB) error {
		var counter dailyCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("date_key = ?", dateKey).
			First(&counter).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			counter = dailyCounter{DateKey: dateKey, NextSeq: 1}
			if err := tx.Create(&counter).Error; err != nil {
				return fmt.Errorf("create daily counter: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lock daily counter: %w", err)
		default:
			counter.NextSeq++
			if err := tx.Model(&dailyCounter{}).
				Where("date_key = ?", dateKey).
				Update("next_seq", counter.NextSeq).Error; err != nil {
				return fmt.Errorf("advance daily counter: %w", err)
			}
		}
		caseNumber = fmt.Sprintf("CASE-%s-%04d", dateKey, counter.NextSeq)
		return nil
	})
	if err != nil {
		return "", err
	}
	return caseNumber, nil
}
