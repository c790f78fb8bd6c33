package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"healthforge/internal/model"
)

// UserRepository handles CRUD for users and guardian links.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates
// basic profile info. New users get defaults plus a guardian invite code.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username, timezone, reminderAt string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID:   telegramID,
			FirstName:    firstName,
			LastName:     lastName,
			Username:     username,
			Timezone:     timezone,
			ReminderAt:   reminderAt,
			GuardianCode: uuid.NewString(),
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByGuardianCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("guardian_code = ?", code).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// AddGuardian links a guardian chat to the user. Re-linking the same chat
// is a no-op thanks to the unique pair index.
func (r *UserRepository) AddGuardian(ctx context.Context, userID uint, guardianChatID int64, guardianUsername string) error {
	link := model.GuardianLink{
		UserID:           userID,
		GuardianChatID:   guardianChatID,
		GuardianUsername: guardianUsername,
	}
	err := r.db.WithContext(ctx).Create(&link).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add guardian: %w", err)
	}
	return nil
}

func (r *UserRepository) RemoveGuardian(ctx context.Context, userID uint, guardianChatID int64) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND guardian_chat_id = ?", userID, guardianChatID).
		Delete(&model.GuardianLink{}).Error; err != nil {
		return fmt.Errorf("remove guardian: %w", err)
	}
	return nil
}

func (r *UserRepository) ListGuardians(ctx context.Context, userID uint) ([]model.GuardianLink, error) {
	var links []model.GuardianLink
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
