package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/erpcore/internal/core/domain"
	"github.com/atvirokodosprendimai/erpcore/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

// AuthService authenticates the admin surface with sha256-hashed API keys.
type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Provision hashes a plaintext token and stores it as an active key. Only
// the hash is ever persisted; the plaintext stays with the operator.
func (s *AuthService) Provision(ctx context.Context, name, role, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, errors.New("empty api key token")
	}
	if role != domain.RoleAdmin && role != domain.RoleService {
		return domain.APIKey{}, fmt.Errorf("unknown api key role %q", role)
	}

	key := domain.APIKey{
		TokenHash: HashToken(token),
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, key); err != nil {
		return domain.APIKey{}, fmt.Errorf("store api key: %w", err)
	}
	return key, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
