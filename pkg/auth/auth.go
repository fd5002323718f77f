package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/storage"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// Service handles registration, login, and bearer token verification
type Service struct {
	store  storage.Store
	cfg    config.AuthConfig
	logger zerolog.Logger
}

// NewService creates an auth service
func NewService(store storage.Store, cfg config.AuthConfig) *Service {
	return &Service{store: store, cfg: cfg, logger: log.WithComponent("auth")}
}

// RegisterRequest carries the registration form fields
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	BetaToken   string `json:"beta_token,omitempty"`
}

// Register creates a new user account with the configured defaults
func (s *Service) Register(req RegisterRequest) (*types.User, error) {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, apperr.New(apperr.ValidationFailed, "Invalid email address")
	}
	if req.Username == "" || req.Password == "" {
		return nil, apperr.New(apperr.ValidationFailed, "Username and password are required")
	}

	if _, err := s.store.GetUserByEmail(req.Email); err == nil {
		return nil, apperr.New(apperr.Conflict, "This email is already registered")
	}
	if _, err := s.store.GetUserByUsername(req.Username); err == nil {
		return nil, apperr.New(apperr.Conflict, "This username is already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	now := time.Now().UTC()
	user := &types.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         types.RoleUser,
		IsActive:     true,
		Wallpaper:    s.cfg.DefaultWallpaper,
		CPU:          s.cfg.DefaultCPU,
		DiskMB:       s.cfg.DefaultDiskMB,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(user); err != nil {
		// lost a race on the unique constraint
		if errors.Is(err, storage.ErrConflict) {
			return nil, apperr.New(apperr.Conflict, "This email is already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("User registered")
	return user, nil
}

// Login verifies credentials by username or email and issues a token
func (s *Service) Login(identifier, password string) (*types.User, string, error) {
	var user *types.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.store.GetUserByEmail(identifier)
	} else {
		user, err = s.store.GetUserByUsername(identifier)
	}
	if err != nil {
		return nil, "", apperr.New(apperr.Unauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.New(apperr.Unauthorized, "Invalid credentials")
	}
	if !user.IsActive {
		return nil, "", apperr.New(apperr.Forbidden, "Account is inactive")
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// IssueToken signs a bearer token whose sub claim is the user id
func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.cfg.TokenTTL()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// DecodeToken verifies a bearer token and returns the subject user id
func (s *Service) DecodeToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", apperr.New(apperr.Unauthorized, "Invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperr.New(apperr.Unauthorized, "Invalid or expired token")
	}
	return sub, nil
}

// Authenticate resolves a bearer token to an active user
func (s *Service) Authenticate(tokenStr string) (*types.User, error) {
	userID, err := s.DecodeToken(tokenStr)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(userID)
	if err != nil {
		return nil, apperr.New(apperr.Unauthorized, "Invalid or expired token")
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.Forbidden, "Account is inactive")
	}
	return user, nil
}

// LookupUsername returns the user behind a username for the public
// login-screen profile. Callers are expected to rate-limit.
func (s *Service) LookupUsername(username string) (*types.User, error) {
	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "User not found")
	}
	return user, nil
}

// RequireRole gates a user on a minimum role. Admins pass every gate.
func RequireRole(user *types.User, role types.Role) error {
	if user.Role == types.RoleAdmin || user.Role == role {
		return nil
	}
	return apperr.New(apperr.Forbidden, "Insufficient permissions")
}
