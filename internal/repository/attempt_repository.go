package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/epistle/internal/model"
)

var ErrAttemptNotFound = errors.New("attempt not found")

type AttemptRepository interface {
	// CreateWithActivePointer inserts the attempt and repoints the user's
	// active scenario/attempt fields in a single transaction.
	CreateWithActivePointer(attempt *model.Attempt) error
	FindByID(email, id string) (*model.Attempt, error)
	FindAllByUser(email string) ([]model.Attempt, error)
	// TransitionToGraded atomically moves a pending attempt to graded and
	// writes the result fields. Returns false when the attempt was not
	// pending anymore (duplicate signal or lost race); the row is untouched
	// in that case. The user's active pointer is cleared in the same
	// transaction when it still references this attempt.
	TransitionToGraded(email, id string, fields model.GradedFields) (bool, error)
	// TransitionToAbandoned is the same compare-and-set for pending→abandoned.
	TransitionToAbandoned(email, id string) (bool, error)
}

type attemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) CreateWithActivePointer(attempt *model.Attempt) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		user := model.User{
			Email:            attempt.UserEmail,
			ActiveScenarioID: &attempt.ScenarioID,
			ActiveAttemptID:  &attempt.ID,
		}
		// Upsert: a first-time sender may not have a user row yet.
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"active_scenario_id", "active_attempt_id", "updated_at"}),
		}).Create(&user).Error
	})
}

func (r *attemptRepository) FindByID(email, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := r.db.Where("user_email = ? AND id = ?", model.NormalizeEmail(email), id).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *attemptRepository) FindAllByUser(email string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.
		Where("user_email = ?", model.NormalizeEmail(email)).
		Order("started_at desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *attemptRepository) TransitionToGraded(email, id string, fields model.GradedFields) (bool, error) {
	claimed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, email, id)
		if err != nil {
			return err
		}
		if attempt.Status != model.AttemptPending {
			return nil
		}

		now := time.Now().UTC()
		attempt.Status = model.AttemptGraded
		attempt.GradedAt = &now
		attempt.Score = &fields.Score
		attempt.MaxScore = &fields.MaxScore
		attempt.Feedback = &fields.Feedback
		attempt.RubricScores = fields.RubricScores
		if fields.RevisionExample != "" {
			attempt.RevisionExample = &fields.RevisionExample
		}
		if err := tx.Save(attempt).Error; err != nil {
			return err
		}
		claimed = true
		return clearActivePointer(tx, attempt.UserEmail, attempt.ID)
	})
	return claimed, err
}

func (r *attemptRepository) TransitionToAbandoned(email, id string) (bool, error) {
	claimed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		attempt, err := lockAttempt(tx, email, id)
		if err != nil {
			return err
		}
		if attempt.Status != model.AttemptPending {
			return nil
		}
		attempt.Status = model.AttemptAbandoned
		if err := tx.Save(attempt).Error; err != nil {
			return err
		}
		claimed = true
		return clearActivePointer(tx, attempt.UserEmail, attempt.ID)
	})
	return claimed, err
}

func lockAttempt(tx *gorm.DB, email, id string) (*model.Attempt, error) {
	var attempt model.Attempt
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_email = ? AND id = ?", model.NormalizeEmail(email), id).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// clearActivePointer resets the user's active fields only while they still
// reference the attempt that just reached a terminal status.
func clearActivePointer(tx *gorm.DB, email, attemptID string) error {
	return tx.Model(&model.User{}).
		Where("email = ? AND active_attempt_id = ?", email, attemptID).
		Updates(map[string]interface{}{
			"active_scenario_id": nil,
			"active_attempt_id":  nil,
		}).Error
}
