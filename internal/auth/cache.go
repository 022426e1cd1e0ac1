package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	cacheFileName = ".archiver_token.json"
	cacheFilePerm = 0600
)

// DefaultCachePath returns the user-level location of the credential cache.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return cacheFileName
	}

	return filepath.Join(home, cacheFileName)
}

func loadCachedCredential(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential cache: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse credential cache: %w", err)
	}

	if !ValidShape(cred.Token) || !cred.Valid() {
		return nil, fmt.Errorf("cached credential is stale or malformed")
	}

	return &cred, nil
}

func saveCachedCredential(path string, cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if err := os.WriteFile(path, data, cacheFilePerm); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}

	return nil
}

func removeCachedCredential(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential cache: %w", err)
	}

	return nil
}
