package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const publicColumns = `id, username, email, full_name, avatar_url, cover_image_url, created_at, updated_at`

const userColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at`

type UserRepository struct {
	db     *DB
	hasher Hasher
}

func NewUserRepository(db *DB, hasher Hasher) *UserRepository {
	return &UserRepository{db: db, hasher: hasher}
}

// Create hashes the plaintext password and inserts the user. It returns the
// new user's id.
func (r *UserRepository) Create(ctx context.Context, in *NewUser) (uuid.UUID, error) {
	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		id, in.Username, in.Email, in.FullName, hash, in.Avatar, in.CoverImage, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, ErrUserExists
		}
		return uuid.Nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return id, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// FindPublicByID never selects the password hash or refresh token.
func (r *UserRepository) FindPublicByID(ctx context.Context, id uuid.UUID) (*PublicUser, error) {
	query := `SELECT ` + publicColumns + ` FROM users WHERE id = $1`
	return scanPublicUser(r.db.QueryRowContext(ctx, query, id))
}

// FindByLogin looks a user up by username or email. Empty values never match.
// When the two identify different users the username wins.
func (r *UserRepository) FindByLogin(ctx context.Context, username, email string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY ($1 <> '' AND username = $1) DESC
		LIMIT 1
	`
	return scanUser(r.db.QueryRowContext(ctx, query, username, email))
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*PublicUser, error) {
	query := `SELECT ` + publicColumns + ` FROM users WHERE username = $1`
	return scanPublicUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// UpdatePassword re-hashes plaintext and stores it.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, plaintext string) error {
	hash, err := r.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(res)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate) (*PublicUser, error) {
	query := `
		UPDATE users
		SET full_name = $2, username = $3, email = COALESCE(NULLIF($4, ''), email), updated_at = $5
		WHERE id = $1
		RETURNING ` + publicColumns
	u, err := scanPublicUser(r.db.QueryRowContext(ctx, query, id, p.FullName, p.Username, p.Email, time.Now().UTC()))
	if err != nil && isUniqueViolation(err) {
		return nil, ErrUserExists
	}
	return u, err
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id uuid.UUID, url string) (*PublicUser, error) {
	query := `UPDATE users SET avatar_url = $2, updated_at = $3 WHERE id = $1 RETURNING ` + publicColumns
	return scanPublicUser(r.db.QueryRowContext(ctx, query, id, url, time.Now().UTC()))
}

func (r *UserRepository) UpdateCoverImage(ctx context.Context, id uuid.UUID, url string) (*PublicUser, error) {
	query := `UPDATE users SET cover_image_url = $2, updated_at = $3 WHERE id = $1 RETURNING ` + publicColumns
	return scanPublicUser(r.db.QueryRowContext(ctx, query, id, url, time.Now().UTC()))
}

// SetRefreshToken overwrites the stored refresh token, invalidating any
// previous one. Only this column is written.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET refresh_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return requireRow(res)
}

// SwapRefreshToken replaces expected with next in a single conditional
// update. It reports false when the stored token was no longer expected, in
// which case nothing is written.
func (r *UserRepository) SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) (bool, error) {
	query := `UPDATE users SET refresh_token = $3 WHERE id = $1 AND refresh_token = $2`
	res, err := r.db.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return n == 1, nil
}

// ClearRefreshToken nulls the stored refresh token. Clearing an already
// empty token is not an error.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET refresh_token = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var refresh sql.NullString
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&u.Avatar, &u.CoverImage, &refresh, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if refresh.Valid {
		u.RefreshToken = &refresh.String
	}
	return u, nil
}

func scanPublicUser(row rowScanner) (*PublicUser, error) {
	u := &PublicUser{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
