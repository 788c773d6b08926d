// Package authpw provides username/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"roadmapper/api/internal/document"
	"roadmapper/api/internal/store"
)

const (
	MinUsernameLength = 3
	MinPasswordLength = 6
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

type SignUpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignUp validates the credentials and creates the account. Validation
// failures wrap document.ErrValidation; a taken username is ErrUsernameTaken.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	username := strings.TrimSpace(req.Username)
	if len(username) < MinUsernameLength {
		return store.User{}, fmt.Errorf("%w: username must be at least %d characters", document.ErrValidation, MinUsernameLength)
	}
	if len(req.Password) < MinPasswordLength {
		return store.User{}, fmt.Errorf("%w: password must be at least %d characters", document.ErrValidation, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrUsernameTaken
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

type SignInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignIn checks the password. Unknown usernames and wrong passwords both
// return ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return store.User{}, fmt.Errorf("%w: username and password are required", document.ErrValidation)
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, document.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
