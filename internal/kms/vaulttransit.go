package kms

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/rustcare/core/internal/crypto"
	rcerrors "github.com/rustcare/core/pkg/errors"
)

// vaultLogical narrows *api.Client to the Logical() read/write surface
// TransitSecretEngine needs, so a fake can stand in for tests without a
// live Vault server.
type vaultLogical interface {
	Write(path string, data map[string]interface{}) (*api.Secret, error)
}

// TransitSecretEngine is the KeyProvider variant backed by HashiCorp
// Vault's Transit secrets engine (spec §4.B). The keyID is a Transit key
// name; Vault returns its own "vault:v1:..." wire format for wrapped
// material, which this provider treats as an opaque wrapped blob.
type TransitSecretEngine struct {
	client vaultLogical
	keyID  string
}

// TransitSecretEngineConfig configures a Vault Transit-backed provider.
type TransitSecretEngineConfig struct {
	Address string
	Token   string
	KeyID   string // Transit key name
}

// NewTransitSecretEngine builds a Vault Transit-backed provider.
func NewTransitSecretEngine(cfg TransitSecretEngineConfig) (*TransitSecretEngine, error) {
	if cfg.KeyID == "" {
		return nil, rcerrors.Internal("kms.vault_key_id_required", nil)
	}

	vaultCfg := api.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, rcerrors.KmsUnavailable("kms.vault_client_init", "failed to build vault client: %v", err)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &TransitSecretEngine{client: client.Logical(), keyID: cfg.KeyID}, nil
}

func (p *TransitSecretEngine) Encrypt(_ context.Context, plaintext []byte, ectx EncryptionContext) ([]byte, error) {
	resp, err := p.client.Write(fmt.Sprintf("transit/encrypt/%s", p.keyID), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
		"context":   base64.StdEncoding.EncodeToString(canonicalAAD(ectx)),
	})
	if err != nil {
		return nil, rcerrors.KmsUnavailable("kms.vault_encrypt", "vault transit encrypt failed: %v", err)
	}

	ciphertext, ok := respString(resp, "ciphertext")
	if !ok {
		return nil, rcerrors.KmsUnavailable("kms.vault_encrypt", "vault transit response missing ciphertext")
	}

	return []byte(ciphertext), nil
}

func (p *TransitSecretEngine) Decrypt(_ context.Context, ciphertext []byte, ectx EncryptionContext) ([]byte, error) {
	resp, err := p.client.Write(fmt.Sprintf("transit/decrypt/%s", p.keyID), map[string]interface{}{
		"ciphertext": string(ciphertext),
		"context":    base64.StdEncoding.EncodeToString(canonicalAAD(ectx)),
	})
	if err != nil {
		return nil, rcerrors.KmsUnavailable("kms.vault_decrypt", "vault transit decrypt failed: %v", err)
	}

	plaintextB64, ok := respString(resp, "plaintext")
	if !ok {
		return nil, rcerrors.KmsUnavailable("kms.vault_decrypt", "vault transit response missing plaintext")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, rcerrors.Integrity("kms.vault_decode", "vault transit returned undecodable plaintext")
	}

	return plaintext, nil
}

func (p *TransitSecretEngine) GenerateDataKey(_ context.Context, spec KeySpec, ectx EncryptionContext) ([]byte, []byte, error) {
	if spec != KeySpecAES256 {
		return nil, nil, rcerrors.Internal("kms.unsupported_key_spec", nil)
	}

	resp, err := p.client.Write(fmt.Sprintf("transit/datakey/plaintext/%s", p.keyID), map[string]interface{}{
		"context": base64.StdEncoding.EncodeToString(canonicalAAD(ectx)),
	})
	if err != nil {
		return nil, nil, rcerrors.KmsUnavailable("kms.vault_generate_data_key", "vault transit datakey failed: %v", err)
	}

	plaintextB64, ok := respString(resp, "plaintext")
	if !ok {
		return nil, nil, rcerrors.KmsUnavailable("kms.vault_generate_data_key", "vault transit response missing plaintext")
	}

	ciphertext, ok := respString(resp, "ciphertext")
	if !ok {
		return nil, nil, rcerrors.KmsUnavailable("kms.vault_generate_data_key", "vault transit response missing ciphertext")
	}

	dek, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, nil, rcerrors.Integrity("kms.vault_decode", "vault transit returned undecodable data key")
	}

	if len(dek) != crypto.KeySize {
		return nil, nil, rcerrors.Integrity("kms.vault_dek_size", "vault transit returned a data key of unexpected size")
	}

	return dek, []byte(ciphertext), nil
}

func (p *TransitSecretEngine) Rewrap(_ context.Context, wrappedDEK []byte, _, _ uint16) ([]byte, error) {
	resp, err := p.client.Write(fmt.Sprintf("transit/rewrap/%s", p.keyID), map[string]interface{}{
		"ciphertext": string(wrappedDEK),
	})
	if err != nil {
		return nil, rcerrors.KmsUnavailable("kms.vault_rewrap", "vault transit rewrap failed: %v", err)
	}

	ciphertext, ok := respString(resp, "ciphertext")
	if !ok {
		return nil, rcerrors.KmsUnavailable("kms.vault_rewrap", "vault transit response missing ciphertext")
	}

	return []byte(ciphertext), nil
}

func respString(resp *api.Secret, key string) (string, bool) {
	if resp == nil || resp.Data == nil {
		return "", false
	}

	v, ok := resp.Data[key].(string)
	return v, ok
}
