package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name   string
	token  string
	err    error
	called int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Acquire(context.Context) (string, error) {
	s.called++

	return s.token, s.err
}

func validTestToken(seed byte) string {
	b := make([]byte, TokenLength)
	for i := range b {
		b[i] = 'a' + (seed+byte(i))%26
	}

	return string(b)
}

func TestValidShape(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{
			name:  "valid 28-char token",
			token: "abcd1234_test-token_12345678",
			want:  true,
		},
		{
			name:  "too short",
			token: "abc123",
			want:  false,
		},
		{
			name:  "too long",
			token: "abcd1234_test-token_123456789",
			want:  false,
		},
		{
			name:  "invalid characters",
			token: "abcd1234 test token 12345678",
			want:  false,
		},
		{
			name:  "empty",
			token: "",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidShape(tt.token); got != tt.want {
				t.Errorf("ValidShape(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestToken_ChainOrderFirstSuccessWins(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	failing := &stubStrategy{name: "direct", err: errors.New("endpoint down")}
	malformed := &stubStrategy{name: "probe", token: "too-short"}
	working := &stubStrategy{name: "page", token: validTestToken(1)}
	never := &stubStrategy{name: "never", token: validTestToken(2)}

	p := NewProvider(ctx, cachePath, failing, malformed, working, never)

	token, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, working.token, token)

	assert.Equal(t, 1, failing.called)
	assert.Equal(t, 1, malformed.called, "malformed result must be treated as failure")
	assert.Equal(t, 1, working.called)
	assert.Equal(t, 0, never.called, "chain must stop at first validated success")
}

func TestToken_CacheReuseSkipsStrategies(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	strategy := &stubStrategy{name: "direct", token: validTestToken(3)}
	p := NewProvider(ctx, cachePath, strategy)

	first, err := p.Token(ctx)
	require.NoError(t, err)

	second, err := p.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, strategy.called, "second call must reuse the cached credential")
}

func TestToken_SafetyMarginForcesReacquisition(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	// Persist a credential that expires inside the safety margin.
	stale := &Credential{
		Token:     validTestToken(4),
		ExpiresAt: time.Now().Add(SafetyMargin / 2),
		CreatedAt: time.Now().Add(-TokenTTL),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cachePath, data, 0600))

	fresh := &stubStrategy{name: "direct", token: validTestToken(5)}
	p := NewProvider(ctx, cachePath, fresh)

	assert.False(t, p.HasValidToken(), "credential inside margin must not count as valid")

	token, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh.token, token, "a fresh acquisition must be triggered")
	assert.Equal(t, 1, fresh.called)
}

func TestToken_PersistsAcrossProviders(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	strategy := &stubStrategy{name: "direct", token: validTestToken(6)}

	p1 := NewProvider(ctx, cachePath, strategy)
	token, err := p1.Token(ctx)
	require.NoError(t, err)

	// A new provider sharing the cache file must not hit the chain at all.
	p2 := NewProvider(ctx, cachePath, &stubStrategy{name: "direct", err: errors.New("down")})
	reloaded, err := p2.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, reloaded)
}

func TestInvalidate_ClearsMemoryAndDisk(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	strategy := &stubStrategy{name: "direct", token: validTestToken(7)}
	p := NewProvider(ctx, cachePath, strategy)

	_, err := p.Token(ctx)
	require.NoError(t, err)
	require.FileExists(t, cachePath)

	p.Invalidate(ctx)

	assert.False(t, p.HasValidToken())
	assert.NoFileExists(t, cachePath)

	// Next call re-acquires.
	_, err = p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, strategy.called)
}

func TestToken_TotalFailureReturnsErrNoCredential(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "token.json")

	p := NewProvider(ctx, cachePath,
		&stubStrategy{name: "a", err: fmt.Errorf("down")},
		&stubStrategy{name: "b", err: fmt.Errorf("also down")},
	)

	token, err := p.Token(ctx)
	assert.Empty(t, token)
	assert.ErrorIs(t, err, ErrNoCredential)
}
