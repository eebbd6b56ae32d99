// Package apikey issues bearer credentials. The raw key is returned once and
// only its bcrypt hash is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every raw key so leaked keys are recognisable.
	KeyPrefix = "pwk_"
	// PrefixLen is the number of leading characters stored in clear text.
	PrefixLen = 8

	randomBytes = 24
)

// Scopes a key can carry.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

var (
	ErrInvalidName  = errors.New("api key name is required")
	ErrInvalidScope = errors.New("unknown api key scope")
)

var knownScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// Issued is a freshly created key. Raw is never persisted.
type Issued struct {
	Key *models.APIKey
	Raw string
}

// Issue creates a key for tenantID. Empty scopes default to read and write.
func Issue(ctx context.Context, ks store.KeyStore, tenantID uuid.UUID, name string, scopes []string) (*Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeRead, ScopeWrite}
	}
	for _, s := range scopes {
		if !slices.Contains(knownScopes, s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, s)
		}
	}

	raw, err := generate()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ks.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return &Issued{Key: key, Raw: raw}, nil
}

func generate() (string, error) {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// Prefix returns the lookup prefix of a raw key, or false when raw is not
// shaped like a key this package issues.
func Prefix(raw string) (string, bool) {
	if !strings.HasPrefix(raw, KeyPrefix) || len(raw) < PrefixLen {
		return "", false
	}
	return raw[:PrefixLen], true
}

// Verify reports whether raw matches the stored hash of key.
func Verify(key *models.APIKey, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)) == nil
}
