package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messenger/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrPhoneTaken   = errors.New("phone number already registered")
)

const userColumns = `id, phone_number, name, password_hash, about, profile_picture, is_active, last_seen_at, created_at`

// UserRepository abstracts user persistence and presence flags.
type UserRepository interface {
	CreateUser(ctx context.Context, phone, name, passwordHash string, profilePicture *string) (models.User, error)
	GetByPhone(ctx context.Context, phone string) (models.User, error)
	GetByID(ctx context.Context, userID int64) (models.User, error)
	UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error)
	SearchByPhone(ctx context.Context, phone string) ([]models.PublicUser, error)
	SearchByName(ctx context.Context, name string) ([]models.PublicUser, error)
	SetPresence(ctx context.Context, userID int64, active bool) error
	IsActive(ctx context.Context, userID int64) (bool, error)
	MarkPendingDelivered(ctx context.Context, userID int64) (int64, error)
}

// ProfileUpdate carries optional profile fields; nil fields are left untouched.
type ProfileUpdate struct {
	Name           *string
	About          *string
	ProfilePicture *string
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account.
func (r *UserRepo) CreateUser(ctx context.Context, phone, name, passwordHash string, profilePicture *string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`INSERT INTO users (phone_number, name, password_hash, profile_picture)
         VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		phone, name, passwordHash, profilePicture)
	if isUniqueViolation(err) {
		return models.User{}, ErrPhoneTaken
	}
	return user, err
}

// GetByPhone fetches a user by phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE phone_number=$1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// UpdateProfile applies the non-nil fields of the update.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`UPDATE users SET
            name = COALESCE($2, name),
            about = COALESCE($3, about),
            profile_picture = COALESCE($4, profile_picture)
         WHERE id=$1 RETURNING `+userColumns,
		userID, update.Name, update.About, update.ProfilePicture)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// SearchByPhone returns users with an exact phone match.
func (r *UserRepo) SearchByPhone(ctx context.Context, phone string) ([]models.PublicUser, error) {
	var users []models.PublicUser
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, phone_number, name, about, profile_picture, is_active, last_seen_at
         FROM users WHERE phone_number=$1`, phone)
	return users, err
}

// SearchByName returns users whose name contains the query, case-insensitively.
func (r *UserRepo) SearchByName(ctx context.Context, name string) ([]models.PublicUser, error) {
	var users []models.PublicUser
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, phone_number, name, about, profile_picture, is_active, last_seen_at
         FROM users WHERE name ILIKE $1`, "%"+name+"%")
	return users, err
}

// SetPresence flips the durable presence flag and stamps last_seen_at.
func (r *UserRepo) SetPresence(ctx context.Context, userID int64, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active=$2, last_seen_at=NOW() WHERE id=$1`, userID, active)
	return err
}

// IsActive reads the durable presence flag.
func (r *UserRepo) IsActive(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := r.db.GetContext(ctx, &active, `SELECT is_active FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrUserNotFound
	}
	return active, err
}

// MarkPendingDelivered stamps every undelivered receipt addressed to the user.
// Connecting means the client has now received everything sent while it was
// offline.
func (r *UserRepo) MarkPendingDelivered(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE message_receipts SET delivered_at=NOW()
         WHERE recipient_user_id=$1 AND delivered_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
