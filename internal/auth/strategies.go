package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/italolelis/media_archiver/internal/logctx"
)

const tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// TokenHeader is the header the service expects the credential in.
const TokenHeader = "x-service-info"

// DirectStrategy asks a dedicated lightweight endpoint for a fresh
// credential. The endpoint hands the token back either as a bare JSON
// string or under one of a few known keys.
type DirectStrategy struct {
	Client   *http.Client
	Endpoint string // full URL of the token endpoint
}

func (s *DirectStrategy) Name() string { return "direct" }

func (s *DirectStrategy) Acquire(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	return extractTokenFromResponse(body)
}

// extractTokenFromResponse handles the response shapes the token endpoint
// is known to produce.
func extractTokenFromResponse(body []byte) (string, error) {
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil && ValidShape(bare) {
		return bare, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"token", "serviceInfo", "xServiceInfo", "value"} {
			if v, ok := fields[key].(string); ok && ValidShape(v) {
				return v, nil
			}
		}
	}

	return "", fmt.Errorf("no token in response")
}

// ProbeStrategy synthesizes candidate credentials matching the expected
// shape and accepts the first one the service honors on a cheap authorized
// probe request.
type ProbeStrategy struct {
	Client      *http.Client
	ProbeURL    string // full URL of the probe endpoint
	MaxAttempts int
}

func (s *ProbeStrategy) Name() string { return "generate-and-probe" }

func (s *ProbeStrategy) Acquire(ctx context.Context) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	for i := 0; i < attempts; i++ {
		candidate, err := generateToken()
		if err != nil {
			return "", err
		}

		ok, err := s.probe(ctx, candidate)
		if err != nil {
			return "", err
		}

		if ok {
			return candidate, nil
		}

		logger.Debug("generated candidate rejected by probe", "attempt", i+1)
	}

	return "", fmt.Errorf("no generated candidate accepted after %d attempts", attempts)
}

func (s *ProbeStrategy) probe(ctx context.Context, candidate string) (bool, error) {
	payload := []byte(`{"selection":"trending-day","offset":0,"limit":1,"advertisable":true}`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ProbeURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build probe request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, candidate)

	resp, err := s.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // probe only cares about the status

	return resp.StatusCode == http.StatusOK, nil
}

func generateToken() (string, error) {
	b := make([]byte, TokenLength)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tokenCharset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}

		b[i] = tokenCharset[n.Int64()]
	}

	return string(b), nil
}
