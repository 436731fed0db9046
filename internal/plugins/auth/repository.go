package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
	"github.com/mealbuddy/mealbuddy/internal/database"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY, raised by unique key violations.
const mysqlErrDuplicateEntry = 1062

// ErrDuplicateUser is returned by Create and LinkOAuthSubject when a unique
// key (email or OAuth subject) is already taken.
var ErrDuplicateUser = errors.New("auth: user already exists")

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
// Lookups return apperror.NotFound when no row matches.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByOAuthSubject(ctx context.Context, subjectID string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	LinkOAuthSubject(ctx context.Context, id, subjectID string, verified bool) error

	// Email verification.
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	MarkVerified(ctx context.Context, id string) error

	// Password reset.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// userColumns is the shared SELECT list, in scanUser order.
const userColumns = `id, email, full_name, password_hash, oauth_subject_id,
	is_active, is_superuser, is_verified,
	verification_token_hash, verification_token_expires_at,
	reset_token_hash, reset_token_expires_at,
	last_login_at, login_count, created_at, updated_at`

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db database.DBTX
}

// NewUserRepository creates a user repository bound to a pool or a
// transaction.
func NewUserRepository(db database.DBTX) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user row into the users table.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, full_name, password_hash, oauth_subject_id,
	                             is_active, is_superuser, is_verified,
	                             verification_token_hash, verification_token_expires_at,
	                             login_count, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.OAuthSubjectID,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		user.VerificationTokenHash,
		user.VerificationTokenExpiresAt,
		user.LoginCount,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByEmail retrieves a user by their email address.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByOAuthSubject retrieves the user linked to a Google subject id.
func (r *userRepository) FindByOAuthSubject(ctx context.Context, subjectID string) (*User, error) {
	return r.findOne(ctx, "oauth_subject_id", subjectID)
}

// FindByVerificationToken retrieves a user by the digest of their pending
// verification token. Expiry is checked by the caller.
func (r *userRepository) FindByVerificationToken(ctx context.Context, tokenHash string) (*User, error) {
	return r.findOne(ctx, "verification_token_hash", tokenHash)
}

// FindByResetToken retrieves a user by the digest of their pending reset
// token. Expiry is checked by the caller.
func (r *userRepository) FindByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	return r.findOne(ctx, "reset_token_hash", tokenHash)
}

// findOne runs the shared SELECT filtered on a single column. column is
// always a compile-time constant from this file.
func (r *userRepository) findOne(ctx context.Context, column, value string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by %s: %w", column, err)
	}
	return user, nil
}

// scanUser maps a row selected with userColumns onto a User.
func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.OAuthSubjectID,
		&user.IsActive,
		&user.IsSuperuser,
		&user.IsVerified,
		&user.VerificationTokenHash,
		&user.VerificationTokenExpiresAt,
		&user.ResetTokenHash,
		&user.ResetTokenExpiresAt,
		&user.LastLoginAt,
		&user.LoginCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EmailExists returns true if a user with the given email already exists.
// Used during registration to check for duplicates before hashing the password.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// RecordLogin stamps last_login_at and increments login_count. Concurrent
// logins are last-writer-wins on the timestamp; the counter never decreases.
func (r *userRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = ?, login_count = login_count + 1 WHERE id = ?`

	return r.execOne(ctx, "recording login", query, at, id)
}

// LinkOAuthSubject attaches a Google subject id to an existing account. The
// password hash is left untouched. verified upgrades is_verified but never
// clears it.
func (r *userRepository) LinkOAuthSubject(ctx context.Context, id, subjectID string, verified bool) error {
	query := `UPDATE users SET oauth_subject_id = ?, is_verified = (is_verified OR ?) WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, subjectID, verified, id)
	if isDuplicateEntry(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("linking oauth subject: %w", err)
	}
	return nil
}

// --- Email Verification ---

// SetVerificationToken stores the digest of a new verification token.
func (r *userRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `UPDATE users SET verification_token_hash = ?, verification_token_expires_at = ? WHERE id = ?`

	return r.execOne(ctx, "setting verification token", query, tokenHash, expiresAt, id)
}

// MarkVerified sets is_verified and clears the verification token so it
// can't be reused.
func (r *userRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET is_verified = TRUE,
	                 verification_token_hash = NULL, verification_token_expires_at = NULL
	          WHERE id = ?`

	return r.execOne(ctx, "marking user verified", query, id)
}

// --- Password Reset ---

// SetResetToken stores the digest of a new reset token, replacing any
// earlier pending token.
func (r *userRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ?`

	return r.execOne(ctx, "setting reset token", query, tokenHash, expiresAt, id)
}

// UpdatePassword sets a new password hash and clears any pending reset token.
func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?,
	                 reset_token_hash = NULL, reset_token_expires_at = NULL
	          WHERE id = ?`

	return r.execOne(ctx, "updating password", query, passwordHash, id)
}

// execOne runs an UPDATE that must hit exactly one user row.
func (r *userRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// isDuplicateEntry reports whether err is a MariaDB unique key violation.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}
