package beta

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aisu-run/aisu-core/pkg/apperr"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/storage"
	"github.com/aisu-run/aisu-core/pkg/types"
)

// Service issues and consumes single-use beta invite tokens. Tokens are
// stored as sha256 hashes; the cleartext exists only in the issuance
// response.
type Service struct {
	store storage.Store
	cfg   config.BetaConfig
	now   func() time.Time
}

// NewService creates a beta token service
func NewService(store storage.Store, cfg config.BetaConfig) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// Enabled reports whether registration requires an invite token
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new invite token for an email and returns the
// cleartext token.
func (s *Service) Issue(email string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	record := &types.BetaToken{
		ID:        uuid.New().String(),
		Email:     email,
		TokenHash: hashToken(token),
		ExpiresAt: s.now().Add(time.Duration(s.cfg.TokenExpireHours) * time.Hour),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateBetaToken(record); err != nil {
		return "", fmt.Errorf("failed to store beta token: %w", err)
	}
	return token, nil
}

// Consume validates a token and marks it used. A missing, expired, or
// already-used token is Forbidden.
func (s *Service) Consume(token string) error {
	record, err := s.store.GetBetaTokenByHash(hashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.New(apperr.Forbidden, "Invalid beta access token")
		}
		return fmt.Errorf("failed to look up beta token: %w", err)
	}

	if record.UsedAt != nil {
		return apperr.New(apperr.Forbidden, "Beta access token already used")
	}
	if s.now().After(record.ExpiresAt) {
		return apperr.New(apperr.Forbidden, "Beta access token expired")
	}

	used := s.now().UTC()
	record.UsedAt = &used
	if err := s.store.UpdateBetaToken(record); err != nil {
		return fmt.Errorf("failed to mark beta token used: %w", err)
	}
	return nil
}
