package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/pathwise/epistle/internal/model"
)

type UserRepository interface {
	// FindByEmail returns (nil, nil) when the user does not exist; an
	// unknown sender is a defined no-match outcome, not an error.
	FindByEmail(email string) (*model.User, error)
	Save(user *model.User) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", model.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Save(user *model.User) error {
	return r.db.Save(user).Error
}
