package apikey_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/apikey"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIssue_StoresHashAndPrefix(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	tenant, err := ms.GetDefaultTenant(ctx)
	require.NoError(t, err)

	issued, err := apikey.Issue(ctx, ms, tenant.ID, "  merch-team ", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.Raw, apikey.KeyPrefix))
	assert.Len(t, issued.Raw, len(apikey.KeyPrefix)+48)
	assert.Equal(t, "merch-team", issued.Key.Name)
	assert.Equal(t, []string{apikey.ScopeRead, apikey.ScopeWrite}, issued.Key.Scopes)
	assert.Equal(t, issued.Raw[:apikey.PrefixLen], issued.Key.KeyPrefix)
	assert.NotContains(t, issued.Key.KeyHash, issued.Raw)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(issued.Key.KeyHash), []byte(issued.Raw)))

	found, err := ms.GetAPIKeyByPrefix(ctx, issued.Key.KeyPrefix)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, issued.Key.ID, found[0].ID)
}

func TestIssue_RawKeysDiffer(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	tenant, _ := ms.GetDefaultTenant(ctx)

	a, err := apikey.Issue(ctx, ms, tenant.ID, "a", nil)
	require.NoError(t, err)
	b, err := apikey.Issue(ctx, ms, tenant.ID, "b", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Raw, b.Raw)
}

func TestIssue_Validation(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	tenant, _ := ms.GetDefaultTenant(ctx)

	_, err := apikey.Issue(ctx, ms, tenant.ID, "   ", nil)
	assert.ErrorIs(t, err, apikey.ErrInvalidName)

	_, err = apikey.Issue(ctx, ms, tenant.ID, "ops", []string{"read", "superuser"})
	assert.ErrorIs(t, err, apikey.ErrInvalidScope)
	assert.Contains(t, err.Error(), "superuser")
}

func TestIssue_DuplicateName(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	tenant, _ := ms.GetDefaultTenant(ctx)

	_, err := apikey.Issue(ctx, ms, tenant.ID, "ops", []string{apikey.ScopeAdmin})
	require.NoError(t, err)
	_, err = apikey.Issue(ctx, ms, tenant.ID, "ops", nil)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"pwk_0a1b2c3d4e5f", "pwk_0a1b", true},
		{"pwk_0a1b", "pwk_0a1b", true},
		{"pwk_0a1", "", false},
		{"sk_0a1b2c3d4e5f", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := apikey.Prefix(tt.raw)
		assert.Equal(t, tt.wantOK, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestVerify(t *testing.T) {
	ms := store.NewMemoryStore()
	issued, err := apikey.Issue(context.Background(), ms, uuid.New(), "verify", nil)
	require.NoError(t, err)

	assert.True(t, apikey.Verify(issued.Key, issued.Raw))
	assert.False(t, apikey.Verify(issued.Key, issued.Raw+"x"))
}
