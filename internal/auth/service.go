package auth

import (
	"context"
	"errors"
	"time"

	"github.com/davmie/userbase/internal/models"
	"github.com/davmie/userbase/internal/repo"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service orchestrates registration and login. All collaborators are
// explicit constructor arguments; nothing is read from globals.
type Service struct {
	Users  *repo.UserRepo
	Tokens *TokenIssuer
}

func NewService(users *repo.UserRepo, tokens *TokenIssuer) *Service {
	return &Service{Users: users, Tokens: tokens}
}

// Register creates the user record. The plaintext password is hashed with
// bcrypt and discarded; failure paths write nothing. When the candidate
// carries no roles, the repo assigns {Admin, User} to the very first user
// and {User} to everyone after.
func (s *Service) Register(ctx context.Context, candidate *models.User, password string) (*models.User, error) {
	if _, err := s.Users.GetByUsername(ctx, candidate.Username); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if _, err := s.Users.GetByEmail(ctx, candidate.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	candidate.PasswordHash = string(hash)

	now := time.Now().UTC()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	created, err := s.Users.Create(ctx, candidate)
	if err != nil {
		return nil, translateUniqueViolation(err)
	}
	return created, nil
}

// Login verifies the credentials and issues a token. The username match is
// exact and case-sensitive. is_active is not consulted here.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Users.GetByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	return s.Tokens.Issue(user)
}

// HashPassword hashes a plaintext password for storage. Used by the user
// CRUD handlers when an admin creates an account or a password is changed.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// translateUniqueViolation maps a Postgres unique-index violation back to
// the matching duplicate error. Two concurrent registrations can both pass
// the lookup checks above; the unique index decides the loser.
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch pqErr.Constraint {
		case "users_email_key":
			return ErrDuplicateEmail
		default:
			return ErrDuplicateUsername
		}
	}
	return err
}
