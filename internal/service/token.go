package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ecotrace-api/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	// TokenPrefix is the prefix of session tokens issued by the sign-in service.
	TokenPrefix = "ect_"

	// DefaultTokenKeyPrefix is the Redis key prefix for tokens.
	DefaultTokenKeyPrefix = "ecotrace:token"
)

// TokenStore validates session tokens issued by the external sign-in service.
// Issuance and revocation live there; this side only reads.
type TokenStore struct {
	redis     *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewTokenStore creates a token store over redisClient.
func NewTokenStore(redisClient *redis.Client, keyPrefix string) *TokenStore {
	if keyPrefix == "" {
		keyPrefix = DefaultTokenKeyPrefix
	}
	return &TokenStore{
		redis:     redisClient,
		keyPrefix: strings.TrimSuffix(keyPrefix, ":") + ":",
		now:       time.Now,
	}
}

// ValidateToken checks if a token is valid and returns its data.
func (s *TokenStore) ValidateToken(ctx context.Context, token string) (*model.TokenData, error) {
	if token == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "empty token")
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, model.Errorf(model.KindUnauthenticated, "invalid token format")
	}

	jsonData, err := s.redis.Get(ctx, s.keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.Errorf(model.KindUnauthenticated, "token not found or expired")
	}
	if err != nil {
		return nil, model.Wrap(model.KindInternal, err, "failed to get token")
	}

	var data model.TokenData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, model.Wrap(model.KindUnauthenticated, err, "failed to parse token data")
	}

	if !data.ExpiresAt.IsZero() && s.now().After(data.ExpiresAt) {
		return nil, model.Errorf(model.KindUnauthenticated, "token expired")
	}
	if data.SubjectID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "token has no subject")
	}

	return &data, nil
}
