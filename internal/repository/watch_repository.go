package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/epistle/internal/model"
)

// watchRowID pins the coordination record to a single row.
const watchRowID = 1

type WatchRepository interface {
	Get() (*model.WatchStatus, error)
	// TryClaim runs decide against the current record inside a transaction
	// and, when it returns true, marks the record as claimed by this caller.
	// Returns whether the claim was won and the record as read.
	TryClaim(now time.Time, decide func(*model.WatchStatus) bool) (bool, *model.WatchStatus, error)
	// Complete confirms a successful renewal with the new expiry.
	Complete(expiresAt, now time.Time) error
}

type watchRepository struct {
	db *gorm.DB
}

func NewWatchRepository(db *gorm.DB) WatchRepository {
	return &watchRepository{db: db}
}

func (r *watchRepository) Get() (*model.WatchStatus, error) {
	var status model.WatchStatus
	err := r.db.First(&status, watchRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *watchRepository) TryClaim(now time.Time, decide func(*model.WatchStatus) bool) (bool, *model.WatchStatus, error) {
	claimed := false
	var seen *model.WatchStatus
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var status model.WatchStatus
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&status, watchRowID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = model.WatchStatus{ID: watchRowID}
		} else if err != nil {
			return err
		} else {
			snapshot := status
			seen = &snapshot
		}

		if !decide(seen) {
			return nil
		}

		status.Status = model.WatchRenewing
		status.ClaimedAt = &now
		if err := tx.Save(&status).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, seen, err
}

func (r *watchRepository) Complete(expiresAt, now time.Time) error {
	return r.db.Model(&model.WatchStatus{}).
		Where("id = ?", watchRowID).
		Updates(map[string]interface{}{
			"status":     model.WatchCompleted,
			"expires_at": expiresAt,
			"renewed_at": now,
		}).Error
}
