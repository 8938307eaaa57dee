package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// SigningKey is one entry of the process-wide key set: a declared JWS
// algorithm plus the parsed private key material.
type SigningKey struct {
	Algorithm string
	Key       crypto.PrivateKey
}

// KeySet maps key id -> signing key. Loaded once at startup and treated
// as immutable afterwards; the issuer selects from it by a fixed id.
type KeySet map[string]SigningKey

// keyFileEntry is the on-disk description of one key in the keys file.
type keyFileEntry struct {
	Algorithm string `json:"algorithm"`
	File      string `json:"file"`
}

// LoadKeySet reads a JSON keys file mapping key id to {algorithm, file}
// and parses each referenced PEM private key. Relative key file paths are
// resolved against the keys file's directory.
//
//	{
//	  "es256_0": {"algorithm": "ES256", "file": "es256_0.pem"},
//	  "rs512_0": {"algorithm": "RS512", "file": "rs512_0.pem"}
//	}
func LoadKeySet(path string) (KeySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}

	var entries map[string]keyFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse keys file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	keys := make(KeySet, len(entries))
	for id, entry := range entries {
		keyPath := entry.File
		if !filepath.IsAbs(keyPath) {
			keyPath = filepath.Join(dir, keyPath)
		}
		pemData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", id, err)
		}
		key, err := parsePrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", id, err)
		}
		if err := checkKeyAlgorithm(entry.Algorithm, key); err != nil {
			return nil, fmt.Errorf("key %s: %w", id, err)
		}
		keys[id] = SigningKey{Algorithm: entry.Algorithm, Key: key}
	}
	return keys, nil
}

func parsePrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// checkKeyAlgorithm rejects key sets whose declared algorithm cannot be
// served by the key material; better to fail at load than at signing time.
func checkKeyAlgorithm(alg string, key crypto.PrivateKey) error {
	switch alg {
	case "ES256", "ES384", "ES512":
		if _, ok := key.(*ecdsa.PrivateKey); !ok {
			return fmt.Errorf("algorithm %s requires an EC key, got %T", alg, key)
		}
	case "RS256", "RS384", "RS512":
		if _, ok := key.(*rsa.PrivateKey); !ok {
			return fmt.Errorf("algorithm %s requires an RSA key, got %T", alg, key)
		}
	default:
		return fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	return nil
}
