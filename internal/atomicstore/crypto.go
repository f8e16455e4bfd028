// Encrypted document persistence: an opt-in alternative to WriteJSON/ReadJSON
// for state files an operator wants encrypted at rest (ledger, switcher
// state — both carry spend figures and model-routing state an operator may
// not want sitting in plaintext on a shared host). Grounded on tokenhub's
// internal/vault.go envelope (AES-256-GCM, Argon2id key derivation from a
// passphrase, random salt persisted alongside the ciphertext) adapted from an
// in-memory credential store with a lock/unlock lifecycle to a one-shot
// encrypt-before-write/decrypt-after-read envelope around the same
// temp-file-then-rename primitive WriteJSON already uses.
package atomicstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, matching tokenhub vault.go's OWASP-minimum choices.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// deriveKey derives a 32-byte AES-256 key from passphrase and salt via
// Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// encryptedEnvelope is what actually lands on disk: salt || nonce || AES-GCM
// ciphertext, so a future reader can re-derive the same key without a
// separate salt file.
func encryptEnvelope(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("atomicstore: generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("atomicstore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("atomicstore: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("atomicstore: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	envelope := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

func decryptEnvelope(passphrase string, envelope []byte) ([]byte, error) {
	if len(envelope) < saltLen {
		return nil, fmt.Errorf("atomicstore: envelope too short for salt")
	}
	salt := envelope[:saltLen]
	key := deriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("atomicstore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("atomicstore: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	rest := envelope[saltLen:]
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("atomicstore: envelope too short for nonce")
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("atomicstore: decrypt: wrong passphrase or corrupt file: %w", err)
	}
	return plaintext, nil
}

// WriteJSONEncrypted marshals v as JSON, encrypts it under passphrase, and
// writes the envelope atomically via the same temp-file-then-rename sequence
// WriteJSON uses.
func WriteJSONEncrypted(path, passphrase string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicstore: mkdir %s: %w", dir, err)
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("atomicstore: marshal %s: %w", path, err)
	}
	envelope, err := encryptEnvelope(passphrase, plaintext)
	if err != nil {
		return fmt.Errorf("atomicstore: encrypt %s: %w", path, err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, envelope, 0o600); err != nil {
		return fmt.Errorf("atomicstore: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomicstore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSONEncrypted reads an envelope written by WriteJSONEncrypted, decrypts
// it under passphrase, and decodes it into v. Like ReadJSON, a missing file
// is "no document yet" rather than an error; unlike ReadJSON, a wrong
// passphrase or corrupt envelope IS reported as an error rather than treated
// as absent — silently discarding encrypted spend/routing state on a
// passphrase mismatch would be worse than failing loudly.
func ReadJSONEncrypted(path, passphrase string, v interface{}) (bool, error) {
	envelope, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("atomicstore: read %s: %w", path, err)
	}
	plaintext, err := decryptEnvelope(passphrase, envelope)
	if err != nil {
		return false, fmt.Errorf("atomicstore: %s: %w", path, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return false, fmt.Errorf("atomicstore: unmarshal %s: %w", path, err)
	}
	return true, nil
}
