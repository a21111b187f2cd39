package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/davmie/userbase/internal/models"
	"github.com/lib/pq"
)

var userCols = []string{"id", "username", "email", "password_hash", "first_name", "last_name", "is_active", "roles", "created_at", "updated_at"}

func userRow(id int, username, email, roles string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, username, email, "hash", "", "", true, roles, now, now)
}

func TestUserRepo_Create_FirstUserGetsAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(bootstrapLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO users \(username, email, password_hash`).
		WithArgs("alice", "alice@example.com", "hash", "", "", true,
			pq.Array([]string{models.RoleAdmin, models.RoleUser}), now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	repo := NewUserRepo(db)
	u := &models.User{
		Username: "alice", Email: "alice@example.com", PasswordHash: "hash",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	created, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("unexpected id: %d", created.ID)
	}
	if len(created.Roles) != 2 || created.Roles[0] != models.RoleAdmin || created.Roles[1] != models.RoleUser {
		t.Errorf("expected first user to get Admin and User roles, got: %v", created.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Create_LaterUserGetsUserRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(bootstrapLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`INSERT INTO users \(username, email, password_hash`).
		WithArgs("bob", "bob@example.com", "hash", "", "", true,
			pq.Array([]string{models.RoleUser}), now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectCommit()

	repo := NewUserRepo(db)
	u := &models.User{
		Username: "bob", Email: "bob@example.com", PasswordHash: "hash",
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	created, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created.Roles) != 1 || created.Roles[0] != models.RoleUser {
		t.Errorf("expected only the User role, got: %v", created.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Create_ExplicitRolesSkipBootstrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()

	// No advisory lock and no count when roles are provided.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users \(username, email, password_hash`).
		WithArgs("admin", "admin@example.com", "hash", "Admin", "User", true,
			pq.Array([]string{models.RoleAdmin}), now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	repo := NewUserRepo(db)
	u := &models.User{
		Username: "admin", Email: "admin@example.com", PasswordHash: "hash",
		FirstName: "Admin", LastName: "User", IsActive: true,
		Roles: []string{models.RoleAdmin}, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash`).
		WithArgs(1).
		WillReturnRows(userRow(1, "alice", "alice@example.com", `{"Admin","User"}`, now))

	repo := NewUserRepo(db)
	user, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if user.ID != 1 || user.Username != "alice" {
		t.Errorf("unexpected user: %+v", user)
	}
	if !user.HasRole(models.RoleAdmin) {
		t.Errorf("expected Admin role, got: %v", user.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username, email, password_hash`).
		WithArgs(999).
		WillReturnRows(sqlmock.NewRows(userCols))

	repo := NewUserRepo(db)
	_, err = repo.GetByID(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash`).
		WithArgs("charlie").
		WillReturnRows(userRow(2, "charlie", "charlie@example.com", `{"User"}`, now))

	repo := NewUserRepo(db)
	user, err := repo.GetByUsername(context.Background(), "charlie")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if user.ID != 2 || user.Username != "charlie" {
		t.Errorf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(userCols).
		AddRow(1, "alice", "alice@example.com", "hash", "", "", true, `{"Admin","User"}`, now, now).
		AddRow(2, "bob", "bob@example.com", "hash", "", "", false, `{"User"}`, now, now)

	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(rows)

	repo := NewUserRepo(db)
	users, err := repo.List(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[1].IsActive {
		t.Errorf("expected bob to be inactive")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Update_WithPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`UPDATE users`).
		WithArgs("alice", "alice@example.com", "Alice", "A", true,
			pq.Array([]string{models.RoleUser}), now, "newhash", 1).
		WillReturnRows(userRow(1, "alice", "alice@example.com", `{"User"}`, now))

	repo := NewUserRepo(db)
	u := &models.User{
		ID: 1, Username: "alice", Email: "alice@example.com",
		FirstName: "Alice", LastName: "A", IsActive: true,
		Roles: []string{models.RoleUser}, UpdatedAt: now, PasswordHash: "newhash",
	}
	if _, err := repo.Update(context.Background(), u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Update_WithoutPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`UPDATE users`).
		WithArgs("alice", "alice@example.com", "Alice", "A", true,
			pq.Array([]string{models.RoleUser}), now, 1).
		WillReturnRows(userRow(1, "alice", "alice@example.com", `{"User"}`, now))

	repo := NewUserRepo(db)
	u := &models.User{
		ID: 1, Username: "alice", Email: "alice@example.com",
		FirstName: "Alice", LastName: "A", IsActive: true,
		Roles: []string{models.RoleUser}, UpdatedAt: now,
	}
	if _, err := repo.Update(context.Background(), u); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`UPDATE users`).
		WithArgs("ghost", "ghost@example.com", "", "", true,
			pq.Array([]string{models.RoleUser}), now, 42).
		WillReturnRows(sqlmock.NewRows(userCols))

	repo := NewUserRepo(db)
	u := &models.User{
		ID: 42, Username: "ghost", Email: "ghost@example.com", IsActive: true,
		Roles: []string{models.RoleUser}, UpdatedAt: now,
	}
	_, err = repo.Update(context.Background(), u)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepo(db)
	if err := repo.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_Delete_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(999).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewUserRepo(db)
	if err := repo.Delete(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestUserRepo_CountActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE is_active`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := NewUserRepo(db)
	count, err := repo.CountActive(context.Background())
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 7 {
		t.Errorf("expected 7, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
