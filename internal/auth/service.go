package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when a username fails constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when a password fails constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInactiveAccount is returned when a valid token resolves to a
	// suspended or archived account.
	ErrInactiveAccount = errors.New("account is not active")
)

// Service provides credential issuing and verification.
type Service struct {
	users     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates an authentication service.
func NewService(users store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		users:     users,
		jwtConfig: jwtConfig,
	}
}

// Register creates an account and returns a signed token.
func (s *Service) Register(ctx context.Context, username, password string, departmentID int64) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, hashed, core.RoleEmployee, departmentID)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	return GenerateToken(s.jwtConfig, user.ID, user.Username, user.Role, user.DepartmentID)
}

// Login verifies the password and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user.Status != store.UserStatusActive {
		return "", ErrInvalidCredentials
	}

	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return GenerateToken(s.jwtConfig, user.ID, user.Username, user.Role, user.DepartmentID)
}

// ValidateToken checks signature, expiry, issuer and audience.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// ResolveIdentity validates a bearer token and loads the current
// account record, refusing tokens for missing or inactive accounts.
// This is the connection-time bootstrap check: it runs once, and the
// resolved identity stays attached to the connection for its lifetime.
func (s *Service) ResolveIdentity(ctx context.Context, tokenString string) (core.Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return core.Identity{}, ErrInvalidCredentials
	}

	user, err := s.users.FindActiveByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Identity{}, ErrInactiveAccount
		}
		return core.Identity{}, fmt.Errorf("lookup user: %w", err)
	}

	return user.Identity(), nil
}
