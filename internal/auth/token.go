package auth

import (
	"strconv"
	"time"

	"github.com/davmie/userbase/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the token lifetime applied when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// TokenIssuer mints signed bearer tokens. Validation is stateless: a token
// stays honorable until its exp passes, regardless of later account changes.
type TokenIssuer struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		Secret:   []byte(secret),
		Issuer:   issuer,
		Audience: audience,
		TTL:      ttl,
	}
}

// Issue signs an HS256 token carrying the user's identity claims:
// subject id, username, email, and one roles claim holding every role.
func (i *TokenIssuer) Issue(user *models.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      strconv.Itoa(user.ID),
		"username": user.Username,
		"email":    user.Email,
		"roles":    user.Roles,
		"iss":      i.Issuer,
		"aud":      i.Audience,
		"iat":      now.Unix(),
		"exp":      now.Add(i.TTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.Secret)
}
