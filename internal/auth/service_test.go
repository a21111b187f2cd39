package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/davmie/userbase/internal/models"
	"github.com/davmie/userbase/internal/repo"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var userCols = []string{"id", "username", "email", "password_hash", "first_name", "last_name", "is_active", "roles", "created_at", "updated_at"}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	issuer := NewTokenIssuer("secret", "userbase", "userbase-clients", time.Hour)
	return NewService(repo.NewUserRepo(db), issuer), mock, func() { db.Close() }
}

func TestService_Register_FirstUserPromotedToAdmin(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	// Duplicate lookups miss, then the insert transaction decides the roles.
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(427001).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice", "alice@example.com", sqlmock.AnyArg(), "", "", true,
			pq.Array([]string{models.RoleAdmin, models.RoleUser}), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	candidate := &models.User{Username: "alice", Email: "alice@example.com", IsActive: true}
	created, err := svc.Register(context.Background(), candidate, "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !created.HasRole(models.RoleAdmin) || !created.HasRole(models.RoleUser) {
		t.Errorf("expected first user to hold Admin and User, got: %v", created.Roles)
	}
	if created.PasswordHash == "" || created.PasswordHash == "password123" {
		t.Errorf("expected a bcrypt hash, got: %q", created.PasswordHash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(1, "alice", "alice@example.com", "hash", "", "", true, `{"User"}`, now, now))

	candidate := &models.User{Username: "alice", Email: "other@example.com", IsActive: true}
	_, err := svc.Register(context.Background(), candidate, "password123")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("newname").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE email = \$1`).
		WithArgs("taken@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(1, "alice", "taken@example.com", "hash", "", "", true, `{"User"}`, now, now))

	candidate := &models.User{Username: "newname", Email: "taken@example.com", IsActive: true}
	_, err := svc.Register(context.Background(), candidate, "password123")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestService_Login_Success(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "alice", "alice@example.com", string(hash), "", "", true, `{"User"}`, now, now))

	tokenStr, err := svc.Login(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != "7" {
		t.Errorf("unexpected sub: %q", sub)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestService_Login_WrongPassword(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	hash, _ := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "alice", "alice@example.com", string(hash), "", "", true, `{"User"}`, now, now))

	_, err := svc.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got: %v", err)
	}
}

func TestService_Login_UnknownUser(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := svc.Login(context.Background(), "ghost", "whatever")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestService_Login_InactiveUserStillLogsIn(t *testing.T) {
	svc, mock, cleanup := newTestService(t)
	defer cleanup()

	hash, _ := bcrypt.GenerateFromPassword([]byte("secret pw"), bcrypt.MinCost)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, username, email, password_hash.+ WHERE username = \$1`).
		WithArgs("dormant").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(9, "dormant", "dormant@example.com", string(hash), "", "", false, `{"User"}`, now, now))

	if _, err := svc.Login(context.Background(), "dormant", "secret pw"); err != nil {
		t.Fatalf("expected inactive user to log in, got: %v", err)
	}
}

func TestTranslateUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"email index", &pq.Error{Code: "23505", Constraint: "users_email_key"}, ErrDuplicateEmail},
		{"username index", &pq.Error{Code: "23505", Constraint: "users_username_key"}, ErrDuplicateUsername},
		{"other pq error", &pq.Error{Code: "23503"}, nil},
		{"plain error", errors.New("boom"), nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateUniqueViolation(tc.in)
			if tc.want != nil {
				if !errors.Is(got, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
				return
			}
			if got != tc.in {
				t.Fatalf("expected the error unchanged, got %v", got)
			}
		})
	}
}
