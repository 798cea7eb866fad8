package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/epistle/internal/model"
)

type ProcessedMessageRepository interface {
	IsProcessed(messageID string) (bool, error)
	// MarkProcessed records the ID, returning false when another caller got
	// there first (insert-if-absent).
	MarkProcessed(messageID string, now time.Time) (bool, error)
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

type processedMessageRepository struct {
	db *gorm.DB
}

func NewProcessedMessageRepository(db *gorm.DB) ProcessedMessageRepository {
	return &processedMessageRepository{db: db}
}

func (r *processedMessageRepository) IsProcessed(messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ProcessedMessage{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count > 0, err
}

func (r *processedMessageRepository) MarkProcessed(messageID string, now time.Time) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedMessage{MessageID: messageID, ProcessedAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *processedMessageRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("processed_at < ?", cutoff).Delete(&model.ProcessedMessage{})
	return res.RowsAffected, res.Error
}
