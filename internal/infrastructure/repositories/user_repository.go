package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/you/accountsvc/domain"
	"gorm.io/gorm"
)

// UserRepositoryImpl implements domain.UserRepository using GORM
type UserRepositoryImpl struct {
	db *gorm.DB
}

// DBUser represents the database model for User (with GORM tags)
type DBUser struct {
	ID              string     `gorm:"primaryKey;size:36"`
	Email           string     `gorm:"uniqueIndex:idx_users_email;size:255;not null"`
	Nickname        string     `gorm:"uniqueIndex:idx_users_nickname;size:64;not null"`
	PasswordHash    string     `gorm:"column:password;size:255;not null"`
	EmailVerified   bool       `gorm:"not null;default:false"`
	EmailVerifiedAt *time.Time `gorm:"column:email_verified_at"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM
func (DBUser) TableName() string {
	return "users"
}

// BeforeCreate assigns the opaque identifier
func (u *DBUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &UserRepositoryImpl{db: db}
}

// Create inserts the user. A unique violation is reported as
// ErrEmailAlreadyExists or ErrNicknameAlreadyExists.
func (r *UserRepositoryImpl) Create(ctx context.Context, user *domain.User) error {
	dbUser := r.domainToDB(user)
	if err := r.db.WithContext(ctx).Create(dbUser).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.conflictFor(ctx, dbUser)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = dbUser.ID
	user.CreatedAt = dbUser.CreatedAt
	user.UpdatedAt = dbUser.UpdatedAt
	return nil
}

// conflictFor works out which unique constraint rejected the insert
func (r *UserRepositoryImpl) conflictFor(ctx context.Context, dbUser *DBUser) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&DBUser{}).Where("email = ?", dbUser.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to resolve duplicate user: %w", err)
	}
	if count > 0 {
		return domain.ErrEmailAlreadyExists
	}
	return domain.ErrNicknameAlreadyExists
}

// FindByEmail implements domain.UserRepository
func (r *UserRepositoryImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

// FindByNickname implements domain.UserRepository
func (r *UserRepositoryImpl) FindByNickname(ctx context.Context, nickname string) (*domain.User, error) {
	return r.findOne(ctx, "nickname = ?", nickname)
}

// FindByID implements domain.UserRepository
func (r *UserRepositoryImpl) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *UserRepositoryImpl) findOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var dbUser DBUser
	err := r.db.WithContext(ctx).Where(query, arg).First(&dbUser).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return r.dbToDomain(&dbUser), nil
}

// MarkEmailVerified sets the verified flag and timestamp together. It is
// idempotent: an already verified user keeps its original timestamp.
func (r *UserRepositoryImpl) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&DBUser{}).
		Where("id = ? AND email_verified = ?", userID, false).
		Updates(map[string]interface{}{
			"email_verified":    true,
			"email_verified_at": at.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark email verified: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// domainToDB converts domain user to database user
func (r *UserRepositoryImpl) domainToDB(user *domain.User) *DBUser {
	return &DBUser{
		ID:              user.ID,
		Email:           user.Email,
		Nickname:        user.Nickname,
		PasswordHash:    user.PasswordHash,
		EmailVerified:   user.EmailVerified,
		EmailVerifiedAt: user.EmailVerifiedAt,
	}
}

// dbToDomain converts database user to domain user
func (r *UserRepositoryImpl) dbToDomain(dbUser *DBUser) *domain.User {
	return &domain.User{
		ID:              dbUser.ID,
		Email:           dbUser.Email,
		Nickname:        dbUser.Nickname,
		PasswordHash:    dbUser.PasswordHash,
		EmailVerified:   dbUser.EmailVerified,
		EmailVerifiedAt: dbUser.EmailVerifiedAt,
		CreatedAt:       dbUser.CreatedAt,
		UpdatedAt:       dbUser.UpdatedAt,
	}
}
