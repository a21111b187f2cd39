package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/davmie/userbase/internal/models"
	"github.com/lib/pq"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// bootstrapLockKey is the advisory lock guarding first-user promotion.
// Holding it for the count+insert makes sure only one concurrent
// registration can observe the empty table and receive the Admin role.
const bootstrapLockKey = 427001

// ==========================
// UserRepo
// ==========================
type UserRepo struct {
	DB *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `id, username, email, password_hash, first_name, last_name, is_active, roles, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.IsActive, pq.Array(&u.Roles),
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ==========================
// Create User
// ==========================
// Create inserts the user. When u.Roles is empty the default role set is
// decided inside the insert transaction: {Admin, User} for the very first
// user in the table, {User} for everyone after. The unique indexes on
// username and email remain the final arbiter under concurrent inserts.
func (r *UserRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if len(u.Roles) == 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockKey); err != nil {
			return nil, err
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
			return nil, err
		}
		if count == 0 {
			u.Roles = []string{models.RoleAdmin, models.RoleUser}
		} else {
			u.Roles = []string{models.RoleUser}
		}
	}

	query := `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_active, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.IsActive, pq.Array(u.Roles), u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// ==========================
// Get By ID
// ==========================
func (r *UserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.DB.QueryRowContext(ctx, query, id))
}

// ==========================
// Get By Username
// ==========================
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.DB.QueryRowContext(ctx, query, username))
}

// ==========================
// Get By Email
// ==========================
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.DB.QueryRowContext(ctx, query, email))
}

// ==========================
// List Users
// ==========================
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash,
			&u.FirstName, &u.LastName, &u.IsActive, pq.Array(&u.Roles),
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ==========================
// Count Users
// ==========================
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountActive counts users with is_active = true.
func (r *UserRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_active`).Scan(&count)
	return count, err
}

// ==========================
// Update User
// ==========================
// Update replaces every field wholesale except password_hash, which is only
// written when u.PasswordHash is non-empty. updated_at is refreshed to
// u.UpdatedAt on every call.
func (r *UserRepo) Update(ctx context.Context, u *models.User) (*models.User, error) {
	if u.PasswordHash != "" {
		query := `
			UPDATE users
			SET username = $1, email = $2, first_name = $3, last_name = $4,
			    is_active = $5, roles = $6, updated_at = $7, password_hash = $8
			WHERE id = $9
			RETURNING ` + userColumns
		return scanUser(r.DB.QueryRowContext(ctx, query,
			u.Username, u.Email, u.FirstName, u.LastName,
			u.IsActive, pq.Array(u.Roles), u.UpdatedAt, u.PasswordHash, u.ID))
	}

	query := `
		UPDATE users
		SET username = $1, email = $2, first_name = $3, last_name = $4,
		    is_active = $5, roles = $6, updated_at = $7
		WHERE id = $8
		RETURNING ` + userColumns
	return scanUser(r.DB.QueryRowContext(ctx, query,
		u.Username, u.Email, u.FirstName, u.LastName,
		u.IsActive, pq.Array(u.Roles), u.UpdatedAt, u.ID))
}

// ==========================
// Delete User
// ==========================
func (r *UserRepo) Delete(ctx context.Context, id int) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
