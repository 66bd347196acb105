package repository

import (
	"errors"
	"fmt"
	"strings"

	"Videoflix/model"

	"gorm.io/gorm"
)

// ErrDuplicateUser 邮箱已被注册
var ErrDuplicateUser = errors.New("user already exists")

// UserRepository defines the interface for user account operations.
type UserRepository interface {
	CreateUser(user *model.User) error
	GetUserByID(id int64) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	ActivateUser(id int64) error
	UpdatePassword(id int64, passwordHash string) error
}

// gormUserRepository implements UserRepository with GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new gormUserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// CreateUser adds a new user account.
func (r *gormUserRepository) CreateUser(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		// MySQL唯一索引冲突
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID. Returns (nil, nil) when not found.
func (r *gormUserRepository) GetUserByID(id int64) (*model.User, error) {
	user := &model.User{}
	if err := r.db.First(user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by ID %d: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email. Returns (nil, nil) when not found.
func (r *gormUserRepository) GetUserByEmail(email string) (*model.User, error) {
	user := &model.User{}
	if err := r.db.Where("email = ?", email).First(user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return user, nil
}

// ActivateUser marks an account as active.
func (r *gormUserRepository) ActivateUser(id int64) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("is_active", true).Error; err != nil {
		return fmt.Errorf("failed to activate user %d: %w", id, err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *gormUserRepository) UpdatePassword(id int64, passwordHash string) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("password_hash", passwordHash).Error; err != nil {
		return fmt.Errorf("failed to update password for user %d: %w", id, err)
	}
	return nil
}
