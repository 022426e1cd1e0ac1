package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/italolelis/media_archiver/internal/auth"
	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/ratelimit"
	"github.com/italolelis/media_archiver/internal/telemetry"
)

const (
	maxPayloadBytes   = 1 << 20
	maxErrorBodyBytes = 200
	maxResponseBytes  = 16 << 20
)

// allowedEndpoints is the fixed set of service paths the executor will call.
// Anything else is rejected before touching the network.
var allowedEndpoints = map[string]struct{}{
	"beta/videos":             {},
	"beta9/video":             {},
	"beta/video/counts":       {},
	"beta/video/media":        {},
	"beta/channel":            {},
	"beta/channel/videos":     {},
	"beta/search/videos":      {},
	"beta/search/channels":    {},
	"beta9/hashtag/trending/": {},
	"beta/profile/links":      {},
	"beta/member_liked_videos": {},
}

// TokenSource supplies and invalidates the authorization credential.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// UsageStats accumulates request accounting for a single executor instance.
type UsageStats struct {
	RequestsMade    int       `json:"requests_made"`
	Errors          int       `json:"errors"`
	LastRequestTime time.Time `json:"last_request_time"`
}

// Executor issues authorized calls against the service, gated by the shared
// rate limiter. It classifies failures into the typed errors of this package
// and retries exactly once on an authorization rejection after refreshing
// the credential.
type Executor struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
	tokens  TokenSource
	tel     *telemetry.Telemetry

	mu    sync.Mutex
	stats UsageStats
}

func NewExecutor(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter, tokens TokenSource, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		tokens:  tokens,
		tel:     tel,
	}
}

// Execute posts the payload to the named endpoint and returns the raw
// response body. Validation happens before any network call; the rate
// limiter gates every round trip.
func (e *Executor) Execute(ctx context.Context, endpoint string, payload any, requiresAuth bool) (json.RawMessage, error) {
	if _, ok := allowedEndpoints[endpoint]; !ok {
		return nil, &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%q is not in the allow-list", endpoint)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("not serializable: %v", err)}
	}

	if len(body) > maxPayloadBytes {
		return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("size %d exceeds %d bytes", len(body), maxPayloadBytes)}
	}

	e.limiter.Wait()

	logger := logctx.LoggerFromContext(ctx).With("endpoint", endpoint)

	token := ""

	if requiresAuth {
		token, err = e.tokens.Token(ctx)
		if err != nil {
			if !errors.Is(err, auth.ErrNoCredential) {
				logger.Error("credential lookup failed", "err", err)
			}

			logger.Warn("no credential available, proceeding unauthenticated")
		}
	}

	resp, respBody, err := e.roundTrip(ctx, endpoint, body, token)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		e.tel.RecordAPIRequest(ctx, endpoint, "ok")

		return respBody, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		e.recordError()
		e.tel.RecordAPIRequest(ctx, endpoint, "rate_limited")

		return nil, &RateLimitError{Endpoint: endpoint}

	case (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) && requiresAuth:
		logger.Info("credential rejected, refreshing and retrying once", "status", resp.StatusCode)

		e.tokens.Invalidate(ctx)

		token, err = e.tokens.Token(ctx)
		if err != nil {
			e.recordError()

			return nil, &AuthError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
		}

		e.limiter.Wait()

		retryResp, retryBody, err := e.roundTrip(ctx, endpoint, body, token)
		if err != nil {
			return nil, err
		}

		if retryResp.StatusCode == http.StatusOK {
			e.tel.RecordAPIRequest(ctx, endpoint, "ok")

			return retryBody, nil
		}

		e.recordError()

		if retryResp.StatusCode == http.StatusUnauthorized || retryResp.StatusCode == http.StatusForbidden {
			e.tel.RecordAPIRequest(ctx, endpoint, "auth_failed")

			return nil, &AuthError{Endpoint: endpoint, StatusCode: retryResp.StatusCode}
		}

		e.tel.RecordAPIRequest(ctx, endpoint, "error")

		return nil, &APIError{Endpoint: endpoint, StatusCode: retryResp.StatusCode, Body: truncate(retryBody)}

	default:
		e.recordError()
		e.tel.RecordAPIRequest(ctx, endpoint, "error")

		logger.Warn("api error", "status", resp.StatusCode, "body", truncate(respBody))

		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(respBody)}
	}
}

// roundTrip performs a single HTTP exchange, counting the attempt whether or
// not a response ever arrives.
func (e *Executor) roundTrip(ctx context.Context, endpoint string, body []byte, token string) (*http.Response, []byte, error) {
	url := e.baseURL + "/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("cannot build request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}

	e.mu.Lock()
	e.stats.RequestsMade++
	e.stats.LastRequestTime = time.Now()
	e.mu.Unlock()

	resp, err := e.client.Do(req)
	if err != nil {
		e.recordError()
		e.tel.RecordAPIRequest(ctx, endpoint, "network_error")

		return nil, nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		e.recordError()
		e.tel.RecordAPIRequest(ctx, endpoint, "network_error")

		return nil, nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	return resp, respBody, nil
}

// Stats returns a snapshot of the usage counters.
func (e *Executor) Stats() UsageStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stats
}

func (e *Executor) recordError() {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}

	return string(body)
}
