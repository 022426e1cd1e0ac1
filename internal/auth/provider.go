package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/telemetry"
)

// ErrNoCredential is returned when every acquisition strategy failed.
// Callers decide whether to proceed unauthenticated or fail fast.
var ErrNoCredential = errors.New("no credential available")

// Strategy is one way of obtaining a credential string. Implementations
// validate the shape of whatever they find before returning it; an
// invalid-shaped result is a failure and the chain proceeds.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context) (string, error)
}

// Provider produces a valid Credential on demand, hiding the instability of
// the remote authorization mechanism behind an ordered strategy chain.
// Safe for concurrent use; the credential persists across restarts through
// a small on-disk cache.
type Provider struct {
	mu         sync.Mutex
	cred       *Credential
	cachePath  string
	strategies []Strategy
	tel        *telemetry.Telemetry
}

// WithTelemetry attaches metric instruments to the provider. Safe to skip;
// a provider without telemetry simply records nothing.
func (p *Provider) WithTelemetry(tel *telemetry.Telemetry) *Provider {
	p.tel = tel

	return p
}

// NewProvider builds a provider with the given fallback chain, tried in
// order on every acquisition. A previously persisted credential is loaded
// eagerly and reused if still within validity.
func NewProvider(ctx context.Context, cachePath string, strategies ...Strategy) *Provider {
	if cachePath == "" {
		cachePath = DefaultCachePath()
	}

	p := &Provider{
		cachePath:  cachePath,
		strategies: strategies,
	}

	if cred, err := loadCachedCredential(cachePath); err == nil {
		logctx.LoggerFromContext(ctx).Debug("reusing persisted credential", "expires_at", cred.ExpiresAt)
		p.cred = cred
	}

	return p
}

// Token returns a valid credential string, acquiring one if the cached
// credential is missing or inside the safety margin. Returns
// ErrNoCredential when every strategy fails.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred.Valid() {
		return p.cred.Token, nil
	}

	logger := logctx.LoggerFromContext(ctx)

	for _, strategy := range p.strategies {
		token, err := strategy.Acquire(ctx)
		if err != nil {
			logger.Debug("credential strategy failed", "strategy", strategy.Name(), "err", err)

			continue
		}

		if !ValidShape(token) {
			logger.Warn("credential strategy returned malformed token", "strategy", strategy.Name())

			continue
		}

		logger.Info("credential acquired", "strategy", strategy.Name())

		p.tel.RecordTokenAcquisition(ctx, strategy.Name())
		p.store(ctx, token)

		return token, nil
	}

	// All strategies failed; an expired-but-present credential is better
	// than nothing for endpoints that tolerate staleness.
	if p.cred != nil && p.cred.Token != "" && time.Now().Before(p.cred.ExpiresAt) {
		logger.Warn("all strategies failed, using credential inside safety margin")

		return p.cred.Token, nil
	}

	return "", ErrNoCredential
}

// Invalidate clears the in-memory credential and removes the persisted
// cache. Used after the remote service rejects a call.
func (p *Provider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cred = nil

	if err := removeCachedCredential(p.cachePath); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to remove credential cache", "err", err)
	}
}

// HasValidToken reports whether a credential is held and outside the
// safety margin, without triggering acquisition.
func (p *Provider) HasValidToken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cred.Valid()
}

func (p *Provider) store(ctx context.Context, token string) {
	now := time.Now()
	p.cred = &Credential{
		Token:     token,
		ExpiresAt: now.Add(TokenTTL),
		CreatedAt: now,
	}

	if err := saveCachedCredential(p.cachePath, p.cred); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to persist credential", "err", err)
	}
}
