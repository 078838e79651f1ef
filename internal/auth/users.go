// Package auth stores the accounts that can sign in and issue learner tokens.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/rbac"
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const minPassword = 8

type Users struct {
	db   *sql.DB
	cost int
}

func NewUsers(db *sql.DB) *Users { return &Users{db: db, cost: bcrypt.DefaultCost} }

// Create adds an account with a bcrypt password hash.
func (u *Users) Create(ctx context.Context, username, role, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, clinical.Invalid("username", "username is required")
	}
	if !rbac.ValidRole(role) {
		return User{}, clinical.Invalid("role", "unknown role "+role)
	}
	hash, err := u.hash(password)
	if err != nil {
		return User{}, err
	}
	return u.insert(ctx, uuid.NewString(), username, role, hash)
}

func (u *Users) hash(password string) (string, error) {
	if len(password) < minPassword {
		return "", clinical.Invalid("password", "password must be at least 8 characters")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return "", clinical.Internal("hash password", err)
	}
	return string(b), nil
}

func (u *Users) insert(ctx context.Context, id, username, role, hash string) (User, error) {
	now := time.Now().UTC()
	_, err := u.db.ExecContext(ctx,
		`INSERT INTO users (id, username, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5)`,
		id, username, role, hash, now.UnixMilli())
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
			return User{}, clinical.Conflict("username %s is taken", username)
		}
		return User{}, clinical.Internal("insert user", err)
	}
	return User{ID: id, Username: username, Role: role, CreatedAt: now.Truncate(time.Millisecond)}, nil
}

// Authenticate checks a username and password.
func (u *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	var (
		usr  User
		hash string
		ms   int64
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&usr.ID, &usr.Username, &usr.Role, &hash, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, clinical.Internal("load user", err)
	}
	// guests have no password and cannot log in this way
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	usr.CreatedAt = time.UnixMilli(ms).UTC()
	return usr, nil
}

// Get loads a user by id.
func (u *Users) Get(ctx context.Context, id string) (User, error) {
	var (
		usr User
		ms  int64
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, created_at FROM users WHERE id=$1`, id).
		Scan(&usr.ID, &usr.Username, &usr.Role, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, clinical.NotFound("user", id)
	}
	if err != nil {
		return User{}, clinical.Internal("load user", err)
	}
	usr.CreatedAt = time.UnixMilli(ms).UTC()
	return usr, nil
}

// EnsureAdmin creates the bootstrap admin from an existing bcrypt hash when
// no account exists yet. It reports whether an account was created.
func (u *Users) EnsureAdmin(ctx context.Context, username, hash string) (bool, error) {
	if username == "" {
		return false, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return false, clinical.Invalid("admin_pass_hash", "not a bcrypt hash")
	}
	var n int
	if err := u.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, clinical.Internal("count users", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := u.insert(ctx, uuid.NewString(), username, rbac.RoleAdmin, hash); err != nil {
		return false, err
	}
	return true, nil
}

// ChangePassword replaces the password of account id after checking the
// current one. Guest accounts have no password and always fail.
func (u *Users) ChangePassword(ctx context.Context, id, current, next string) error {
	var stored string
	err := u.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return clinical.NotFound("user", id)
	}
	if err != nil {
		return clinical.Internal("load user", err)
	}
	if stored == "" || bcrypt.CompareHashAndPassword([]byte(stored), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := u.hash(next)
	if err != nil {
		return err
	}
	if _, err := u.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id); err != nil {
		return clinical.Internal("update password", err)
	}
	return nil
}
