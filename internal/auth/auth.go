package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/codehive/backend/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Identity is the authenticated principal attached to a connection or
// request.
type Identity struct {
	UserID   string
	Username string
}

// UserStore is the slice of the database the auth service needs.
type UserStore interface {
	CreateUser(id, username, passwordHash string) error
	GetUserByUsername(username string) (*db.User, error)
	GetUser(id string) (*db.User, error)
}

// SessionStore holds refresh tokens, keyed by hash, with expiry.
type SessionStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	users      UserStore
	sessions   SessionStore
}

func New(secret string, accessTTL, refreshTTL time.Duration, users UserStore, sessions SessionStore) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		users:      users,
		sessions:   sessions,
	}
}

func (s *Service) Register(username, password string) (*db.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 6 {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.users.CreateUser(id, username, string(hash)); err != nil {
		return nil, err
	}
	return s.users.GetUser(id)
}

func (s *Service) Login(username, password string) (*db.User, error) {
	user, err := s.users.GetUserByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// IssueAccessToken signs a short-lived HS256 JWT carrying the user's
// id and username.
func (s *Service) IssueAccessToken(user *db.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	return token.SignedString(s.secret)
}

// IssueRefreshToken mints an opaque token and stores its hash
// server-side so it can be revoked.
func (s *Service) IssueRefreshToken(ctx context.Context, user *db.User) (string, error) {
	value := uuid.NewString()
	expiresAt := time.Now().Add(s.refreshTTL)
	if err := s.sessions.Save(ctx, HashToken(value), user.ID, expiresAt); err != nil {
		return "", fmt.Errorf("save refresh session: %w", err)
	}
	return value, nil
}

// Refresh exchanges a live refresh token for a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*db.User, string, error) {
	userID, err := s.sessions.Lookup(ctx, HashToken(refreshToken))
	if err != nil {
		return nil, "", ErrInvalidToken
	}

	user, err := s.users.GetUser(userID)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrInvalidToken
	}

	access, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, access, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, HashToken(refreshToken))
}

// Verify checks an access token and returns the identity it carries.
func (s *Service) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	var parsed claims
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid || parsed.Subject == "" || parsed.Username == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: parsed.Subject, Username: parsed.Username}, nil
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
