package redis

import (
	"context"
	"testing"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_Resolve(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "tok-42", "42", []domain.GlobalRole{domain.RoleUser}, time.Hour))

	identity, err := store.ResolveIdentityForToken(ctx, "tok-42")
	require.NoError(t, err)
	assert.True(t, identity.Authenticated)
	assert.Equal(t, "42", identity.Subject)
	assert.Equal(t, []domain.GlobalRole{domain.RoleUser}, identity.Roles)
	assert.False(t, identity.IsAdmin())
}

func TestTokenStore_UnknownTokenIsUnauthenticated(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewTokenStore(client)

	identity, err := store.ResolveIdentityForToken(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, identity.Authenticated)
}

func TestTokenStore_ExpiryAndRevoke(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "short", "1", nil, time.Minute))
	require.NoError(t, store.Store(ctx, "revoked", "2", []domain.GlobalRole{domain.RoleSystemAdmin}, 0))

	mr.FastForward(2 * time.Minute)
	identity, err := store.ResolveIdentityForToken(ctx, "short")
	require.NoError(t, err)
	assert.False(t, identity.Authenticated)

	identity, err = store.ResolveIdentityForToken(ctx, "revoked")
	require.NoError(t, err)
	assert.True(t, identity.IsAdmin())

	require.NoError(t, store.Revoke(ctx, "revoked"))
	identity, err = store.ResolveIdentityForToken(ctx, "revoked")
	require.NoError(t, err)
	assert.False(t, identity.Authenticated)
}

func TestTokenStore_KeyDoesNotContainToken(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewTokenStore(client)

	require.NoError(t, store.Store(context.Background(), "plain-secret", "1", nil, 0))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.NotContains(t, keys[0], "plain-secret")
	assert.Equal(t, tokenKey("plain-secret"), keys[0])
}

func TestTokenStore_CorruptRecord(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewTokenStore(client)
	require.NoError(t, mr.Set(tokenKey("bad"), "{not json"))

	_, err := store.ResolveIdentityForToken(context.Background(), "bad")
	assert.Error(t, err)
}

func TestTokenStore_RedisDown(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewTokenStore(client)
	mr.Close()

	_, err := store.ResolveIdentityForToken(context.Background(), "any")
	assert.Error(t, err)
}
