package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jience/AwesomeSSOManager/pkg/auth"
	"github.com/jience/AwesomeSSOManager/pkg/sso"
)

// Store is the combined persistence surface a backend must provide.
type Store interface {
	auth.UserStore
	sso.ProviderStore
	Close() error
}

// The SQL backends keep the opaque provider config map as a JSON column.

func encodeProviderConfig(config map[string]string) (string, error) {
	if config == nil {
		config = map[string]string{}
	}
	b, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to encode provider config: %w", err)
	}
	return string(b), nil
}

func decodeProviderConfig(raw string) (map[string]string, error) {
	config := make(map[string]string)
	if raw == "" {
		return config, nil
	}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("failed to decode provider config: %w", err)
	}
	return config, nil
}
