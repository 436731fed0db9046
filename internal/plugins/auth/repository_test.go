package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealbuddy/mealbuddy/internal/apperror"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

var userColumnNames = []string{
	"id", "email", "full_name", "password_hash", "oauth_subject_id",
	"is_active", "is_superuser", "is_verified",
	"verification_token_hash", "verification_token_expires_at",
	"reset_token_hash", "reset_token_expires_at",
	"last_login_at", "login_count", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	user := &User{
		ID:           "u-1",
		Email:        "a@x.com",
		FullName:     strPtr("Ann"),
		PasswordHash: strPtr("$2a$04$hash"),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("u-1", "a@x.com", user.FullName, user.PasswordHash, nil,
			true, false, false, nil, nil, 0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), user))
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'uq_users_email'"})

	err := repo.Create(context.Background(), &User{ID: "u-1", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestUserRepository_CreateOtherError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), &User{ID: "u-1", Email: "a@x.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateUser)
}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := created.Add(time.Hour)

	rows := sqlmock.NewRows(userColumnNames).AddRow(
		"u-1", "a@x.com", "Ann", "$2a$04$hash", nil,
		true, false, true,
		nil, nil, nil, nil,
		lastLogin, 3, created, created,
	)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \?`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	require.NotNil(t, user.FullName)
	assert.Equal(t, "Ann", *user.FullName)
	assert.True(t, user.HasPassword())
	assert.Nil(t, user.OAuthSubjectID)
	assert.True(t, user.IsVerified)
	assert.Equal(t, 3, user.LoginCount)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, lastLogin.Equal(*user.LastLoginAt))
}

func TestUserRepository_FindByOAuthSubject_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE oauth_subject_id = \?`).
		WithArgs("google-1").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	_, err := repo.FindByOAuthSubject(context.Background(), "google-1")
	assert.True(t, apperror.IsNotFound(err), "expected NotFound, got %v", err)
}

func TestUserRepository_FindQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \?`).
		WillReturnError(errors.New("timeout"))

	_, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.False(t, apperror.IsNotFound(err))
}

func TestUserRepository_EmailExists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)")).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUserRepository_RecordLogin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login_at = ?, login_count = login_count + 1 WHERE id = ?")).
		WithArgs(at, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLogin(context.Background(), "u-1", at))
}

func TestUserRepository_RecordLogin_NoRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET last_login_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordLogin(context.Background(), "missing", time.Now())
	assert.True(t, apperror.IsNotFound(err))
}

func TestUserRepository_LinkOAuthSubject(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET oauth_subject_id = ?, is_verified = (is_verified OR ?) WHERE id = ?")).
		WithArgs("google-1", true, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.LinkOAuthSubject(context.Background(), "u-1", "google-1", true))
}

func TestUserRepository_LinkOAuthSubject_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET oauth_subject_id").
		WillReturnError(&mysql.MySQLError{Number: 1062})

	err := repo.LinkOAuthSubject(context.Background(), "u-1", "google-1", false)
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestUserRepository_UpdatePasswordClearsResetToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`UPDATE users SET password_hash = \?,\s+reset_token_hash = NULL, reset_token_expires_at = NULL\s+WHERE id = \?`).
		WithArgs("$2a$04$new", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u-1", "$2a$04$new"))
}

func TestUserRepository_MarkVerified(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`UPDATE users SET is_verified = TRUE,\s+verification_token_hash = NULL`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkVerified(context.Background(), "u-1"))
}

func TestUserRepository_SetTokens(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	exp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET verification_token_hash = ?, verification_token_expires_at = ? WHERE id = ?")).
		WithArgs("vhash", exp, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ?")).
		WithArgs("rhash", exp, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetVerificationToken(context.Background(), "u-1", "vhash", exp))
	require.NoError(t, repo.SetResetToken(context.Background(), "u-1", "rhash", exp))
}

func TestStore_WithinTx_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(repo UserRepository) error {
		return repo.Create(context.Background(), &User{ID: "u-1", Email: "a@x.com"})
	})
	require.NoError(t, err)
}

func TestStore_WithinTx_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET oauth_subject_id").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(repo UserRepository) error {
		if err := repo.Create(context.Background(), &User{ID: "u-1", Email: "a@x.com"}); err != nil {
			return err
		}
		return repo.LinkOAuthSubject(context.Background(), "u-1", "google-1", true)
	})
	require.Error(t, err)
}
