package ports

import "context"

// CredentialSource defines the port for retrieving the raw authorization string
// from a secret backend. Supported backends: local files, AWS Secrets Manager,
// HashiCorp Vault.
// Implementation is responsible for:
//   - Authentication with the secret backend
//   - Caching values appropriately (with TTL)
type CredentialSource interface {
	// Fetch returns the secret stored under name.
	// Name format depends on implementation:
	//   - Local: path relative to the base directory
	//   - AWS: secret name or full ARN
	//   - Vault: path below the KV mount, e.g. "gateway-sdk/authorization"
	Fetch(ctx context.Context, name string) (string, error)
}
