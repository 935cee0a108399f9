package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tableserve/tableserve-auth/internal/model"
)

const mysqlDuplicateEntry = 1062

const usersSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		username      VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
		email         VARCHAR(320) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		roles         VARCHAR(255) NOT NULL DEFAULT '',
		created_at    DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email),
		KEY idx_users_username (username)
	)`

const selectUser = `SELECT id, username, email, password_hash, roles, created_at FROM users`

// MySQLUserRepository stores users in a MySQL table.
type MySQLUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLUserRepository creates a new MySQLUserRepository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db, now: time.Now}
}

// Migrate creates the users table if it does not exist.
func (r *MySQLUserRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, usersSchema)
	return err
}

// Create inserts a new user and sets the generated ID on the user struct.
func (r *MySQLUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (username, email, password_hash, roles, created_at) VALUES (?, ?, ?, ?, ?)`

	email := NormalizeEmail(user.Email)
	createdAt := r.now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		user.Username, email, user.PasswordHash, strings.Join(user.Roles, ","), createdAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	user.ID = strconv.FormatInt(id, 10)
	user.Email = email
	user.CreatedAt = createdAt
	return nil
}

// GetByEmail retrieves a user by their email address.
func (r *MySQLUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = ?`, NormalizeEmail(email))
}

// GetByUsername retrieves the earliest registered user with the given username.
// Usernames compare byte for byte, so "Alice" and "alice" are different users.
func (r *MySQLUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, selectUser+` WHERE username = ? COLLATE utf8mb4_bin ORDER BY id ASC LIMIT 1`, username)
}

// CountByUsername returns how many users share the given username.
func (r *MySQLUserRepository) CountByUsername(ctx context.Context, username string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ? COLLATE utf8mb4_bin`, username).Scan(&n)
	return n, err
}

func (r *MySQLUserRepository) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var (
		id    int64
		roles string
		user  model.User
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&id, &user.Username, &user.Email, &user.PasswordHash, &roles, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.ID = strconv.FormatInt(id, 10)
	if roles != "" {
		user.Roles = strings.Split(roles, ",")
	}
	return &user, nil
}

// isDuplicateEntryError checks if a MySQL error is a duplicate entry error (code 1062).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
