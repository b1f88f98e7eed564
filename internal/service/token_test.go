package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/model"
)

// Malformed tokens are refused before Redis is consulted, so no client is needed.
func TestTokenStore_RejectsMalformedTokens(t *testing.T) {
	s := NewTokenStore(nil, "")
	require.Equal(t, DefaultTokenKeyPrefix+":", s.keyPrefix)

	for _, token := range []string{"", "abc", "sk_live_123"} {
		_, err := s.ValidateToken(context.Background(), token)
		requireKind(t, model.KindUnauthenticated, err)
	}
}
