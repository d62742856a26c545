package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
)

// localSource implements CredentialSource using the local filesystem
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type localSource struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSource creates a new local filesystem credential source
func NewLocalSource(basePath string, logger *zap.Logger) ports.CredentialSource {
	return &localSource{
		basePath: basePath,
		logger:   logger,
	}
}

// Fetch reads a secret file. Files hold either the plain value or
// a JSON document {"value": "..."}.
func (s *localSource) Fetch(ctx context.Context, name string) (string, error) {
	filePath := filepath.Join(s.basePath, filepath.Clean("/"+name))

	s.logger.Debug("Reading secret from filesystem",
		zap.String("path", name),
	)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret not found: %s", name)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	// Support both plain text and JSON format
	var secretData struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return secretData.Value, nil
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("secret value is empty: %s", name)
	}
	return value, nil
}
