package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file parameters.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// Secret name constants matching each provider's conventional env variable.
const (
	SecretOpenAIKey    = "OPENAI_API_KEY"
	SecretAnthropicKey = "ANTHROPIC_API_KEY"
	SecretGeminiKey    = "GEMINI_API_KEY"
)

// In-memory decrypted secrets, populated by LoadSecretsFromFile.
//
//nolint:gochecknoglobals // intentional in-memory secrets storage
var (
	decryptedSecrets map[string]string
	secretsMu        sync.RWMutex
)

// GetSecret returns a secret value by name using standard precedence:
// 1. Decrypted secrets file (in memory)
// 2. Environment variables.
func GetSecret(name string) (string, error) {
	secretsMu.RLock()
	if decryptedSecrets != nil {
		if value, ok := decryptedSecrets[name]; ok && value != "" {
			secretsMu.RUnlock()
			return value, nil
		}
	}
	secretsMu.RUnlock()

	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// SetSecret stores a secret value in memory; SaveSecretsToFile persists it.
func SetSecret(name, value string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if decryptedSecrets == nil {
		decryptedSecrets = make(map[string]string)
	}
	decryptedSecrets[name] = value
}

// SecretsFilePath returns the encrypted secrets file location in dataDir.
func SecretsFilePath(dataDir string) string {
	return filepath.Join(dataDir, secretsFileName)
}

// HasSecretsFile reports whether an encrypted secrets file exists.
func HasSecretsFile(dataDir string) bool {
	_, err := os.Stat(SecretsFilePath(dataDir))
	return err == nil
}

// deriveKey stretches the passphrase with the stored salt.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// SaveSecretsToFile encrypts the in-memory secrets with a passphrase-derived
// key (scrypt + AES-256-GCM) and writes them atomically into dataDir.
func SaveSecretsToFile(dataDir, passphrase string) error {
	secretsMu.RLock()
	snapshot := make(map[string]string, len(decryptedSecrets))
	for k, v := range decryptedSecrets {
		snapshot[k] = v
	}
	secretsMu.RUnlock()

	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Layout: salt || nonce || ciphertext.
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	path := SecretsFilePath(dataDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace secrets file: %w", err)
	}
	return nil
}

// LoadSecretsFromFile decrypts the secrets file into memory.
func LoadSecretsFromFile(dataDir, passphrase string) error {
	blob, err := os.ReadFile(SecretsFilePath(dataDir))
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(blob) < saltSize {
		return fmt.Errorf("secrets file truncated")
	}

	salt := blob[:saltSize]
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(blob) < saltSize+gcm.NonceSize() {
		return fmt.Errorf("secrets file truncated")
	}

	nonce := blob[saltSize : saltSize+gcm.NonceSize()]
	ciphertext := blob[saltSize+gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets (wrong passphrase?): %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return fmt.Errorf("failed to parse secrets: %w", err)
	}

	secretsMu.Lock()
	decryptedSecrets = secrets
	secretsMu.Unlock()
	return nil
}

// ResetSecrets clears in-memory secrets. Test helper.
func ResetSecrets() {
	secretsMu.Lock()
	decryptedSecrets = nil
	secretsMu.Unlock()
}
