package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tableserve/tableserve-auth/internal/crypto"
	"github.com/tableserve/tableserve-auth/internal/model"
	"github.com/tableserve/tableserve-auth/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmail       = errors.New("email is invalid")
	ErrPasswordRequired   = errors.New("password is required")
	ErrEmailTaken         = errors.New("email already taken")
	ErrUserNotFound       = errors.New("user not found")
)

const defaultStoreTimeout = 5 * time.Second

// UserStore persists user records keyed by a unique email.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// usernameCounter is implemented by stores that can report how many users
// share a username.
type usernameCounter interface {
	CountByUsername(ctx context.Context, username string) (int64, error)
}

// PasswordHasher hashes raw passwords and checks them against stored hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Matches(password, encodedHash string) (bool, error)
}

// AuthService handles registration, login and identity lookup.
type AuthService struct {
	users        UserStore
	hasher       PasswordHasher
	tokens       *crypto.TokenService
	logger       *slog.Logger
	storeTimeout time.Duration
}

type Option func(*AuthService)

// WithLogger sets the logger used for internal failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		s.logger = l
	}
}

// WithStoreTimeout bounds every call to the user store.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, hasher PasswordHasher, tokens *crypto.TokenService, opts ...Option) *AuthService {
	s := &AuthService{
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		logger:       slog.Default(),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the request, hashes the password and stores a new user.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) error {
	username := strings.TrimSpace(req.Username)
	email := repository.NormalizeEmail(req.Email)

	switch {
	case username == "":
		return ErrUsernameRequired
	case email == "":
		return ErrEmailRequired
	case !strings.Contains(email, "@"):
		return ErrInvalidEmail
	case req.Password == "":
		return ErrPasswordRequired
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{model.RoleUser},
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return nil
}

// Authenticate checks email and password against the stored hash and
// returns the matching user. Unknown emails and wrong passwords are not
// distinguished.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	match, err := s.hasher.Matches(password, user.PasswordHash)
	if err != nil {
		s.logger.ErrorContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates a user and issues a token whose subject is the username.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.LoginResponse, error) {
	user, err := s.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return model.LoginResponse{}, err
	}

	token, expiresAt, err := s.tokens.Issue(user.Username)
	if err != nil {
		return model.LoginResponse{}, fmt.Errorf("issuing token: %w", err)
	}

	return model.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// LoadIdentity resolves the authorization profile for a token subject.
// Usernames are not unique; the earliest registered user with the name wins.
func (s *AuthService) LoadIdentity(ctx context.Context, username string) (model.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.Identity{}, ErrUserNotFound
		}
		return model.Identity{}, fmt.Errorf("loading identity: %w", err)
	}

	s.logAmbiguousUsername(ctx, username, user.ID)

	authorities := user.Roles
	if len(authorities) == 0 {
		authorities = []string{model.RoleUser}
	}

	return model.Identity{
		Username:    user.Username,
		Email:       user.Email,
		Authorities: authorities,
	}, nil
}

// logAmbiguousUsername reports at debug level when more than one user holds
// username. The extra store query only runs when debug logging is enabled.
func (s *AuthService) logAmbiguousUsername(ctx context.Context, username, resolvedID string) {
	counter, ok := s.users.(usernameCounter)
	if !ok || !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	n, err := counter.CountByUsername(ctx, username)
	if err != nil {
		s.logger.DebugContext(ctx, "counting users by username", "error", err)
		return
	}
	if n > 1 {
		s.logger.DebugContext(ctx, "username is ambiguous, using earliest registered user",
			"username", username, "matches", n, "user_id", resolvedID)
	}
}
