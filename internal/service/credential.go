package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/taxfolio/paysync/internal/provider"
	"github.com/taxfolio/paysync/internal/vault"
)

// Credential is the decrypted token material of a connection. It is held in
// memory for the duration of one job only and never persisted unencrypted.
type Credential struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the access token is expired or will expire within
// five minutes. Missing expiry means the token is assumed still valid.
func (c Credential) IsExpired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(*c.ExpiresAt)
}

func credentialFromToken(token *provider.TokenResult) Credential {
	cred := Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		cred.ExpiresAt = &expiresAt
	}
	return cred
}

func encryptCredential(v *vault.Vault, cred Credential) ([]byte, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential: %w", err)
	}
	return v.Encrypt(plaintext)
}

func decryptCredential(v *vault.Vault, envelope []byte) (Credential, error) {
	plaintext, err := v.Decrypt(envelope)
	if err != nil {
		return Credential{}, err
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	if cred.AccessToken == "" {
		return Credential{}, fmt.Errorf("credential is missing an access token")
	}
	return cred, nil
}
