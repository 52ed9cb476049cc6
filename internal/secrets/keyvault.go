package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"intake-portal/internal/shared/telemetry"
)

const (
	keyVaultAPIVersion   = "7.4"
	keyVaultScope        = "https://vault.azure.net/.default"
	defaultAuthorityHost = "https://login.microsoftonline.com"
)

// KeyVaultConfig identifies the vault and the service principal used to read it.
type KeyVaultConfig struct {
	VaultURL      string
	TenantID      string
	ClientID      string
	ClientSecret  string
	AuthorityHost string
	Timeout       time.Duration
}

// KeyVault reads secrets from Azure Key Vault over its REST API, authenticating with the OAuth2
// client credentials flow.
type KeyVault struct {
	vaultURL string
	client   *http.Client
}

// NewKeyVault builds a KeyVault client. Tokens are fetched lazily and refreshed by the oauth2
// transport.
func NewKeyVault(ctx context.Context, cfg KeyVaultConfig) (*KeyVault, error) {
	vaultURL := strings.TrimRight(strings.TrimSpace(cfg.VaultURL), "/")
	if vaultURL == "" {
		return nil, fmt.Errorf("key vault url is required")
	}
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("key vault tenant, client id and client secret are required")
	}
	authority := strings.TrimRight(strings.TrimSpace(cfg.AuthorityHost), "/")
	if authority == "" {
		authority = defaultAuthorityHost
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     authority + "/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{keyVaultScope},
	}
	client := cc.Client(ctx)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.Timeout = timeout

	return &KeyVault{vaultURL: vaultURL, client: client}, nil
}

type secretBundle struct {
	Value string `json:"value"`
}

// Get fetches the current version of the named secret.
func (k *KeyVault) Get(ctx context.Context, name string) (string, error) {
	endpoint := k.vaultURL + "/secrets/" + url.PathEscape(name) + "?api-version=" + keyVaultAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build key vault request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("key vault get name=%s: %w: %v", name, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("key vault get name=%s: %w", name, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		telemetry.Error("secrets.keyvault.status", map[string]any{
			"name":   name,
			"status": resp.StatusCode,
			"body":   string(body),
		})
		return "", fmt.Errorf("key vault get name=%s status=%d: %w", name, resp.StatusCode, ErrUnavailable)
	}

	var bundle secretBundle
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&bundle); err != nil {
		return "", fmt.Errorf("decode key vault response name=%s: %w", name, err)
	}
	if bundle.Value == "" {
		return "", fmt.Errorf("key vault get name=%s: empty value: %w", name, ErrNotFound)
	}
	return bundle.Value, nil
}

var _ Provider = (*KeyVault)(nil)
