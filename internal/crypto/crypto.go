package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
)

const (
	// blobVersion prefixes every ciphertext so a future key rotation can
	// distinguish old blobs from new ones.
	blobVersion = 0x01

	kdfIterations = 100_000
	keyLength     = 32
)

// KeySource names which key-resolution path produced the active key,
// reported by ValidateConfig for observability.
type KeySource string

const (
	SourceDirectKey       KeySource = "direct-key"
	SourceDerivedSecret   KeySource = "derived-secret"
	SourceSessionFallback KeySource = "session-secret-fallback"
)

// KeyConfig carries the raw key material candidates from configuration.
type KeyConfig struct {
	EncryptionKeyHex string // direct 256-bit key, hex encoded
	Secret           string // dedicated credential secret for PBKDF2
	Salt             string
	SessionSecret    string // fallback, weakens session/credential separation
}

// ErrNoKeyMaterial is returned by New when no usable key source is
// configured. Callers must treat this as fatal at startup.
var ErrNoKeyMaterial = errors.New("no encryption key material configured")

// ErrDecrypt wraps any authenticated-decryption failure: tampered blob,
// wrong key, or a truncated ciphertext.
var ErrDecrypt = errors.New("payload decryption failed")

// Service performs authenticated encryption of credential payloads.
type Service struct {
	gcm    cipher.AEAD
	source KeySource
}

// New resolves key material in priority order and builds the AEAD. A
// direct key wins over a derived secret, which wins over the session-secret
// fallback. The fallback is logged as a warning because it reuses session
// security material for credential storage.
func New(cfg KeyConfig) (*Service, error) {
	key, source, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if source == SourceSessionFallback {
		slog.Warn("Credential encryption key derived from SESSION_SECRET; set TOKEN_ENCRYPTION_KEY or CREDENTIAL_SECRET to separate session and credential security")
	}

	return &Service{gcm: gcm, source: source}, nil
}

func resolveKey(cfg KeyConfig) ([]byte, KeySource, error) {
	if cfg.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(cfg.EncryptionKeyHex)
		if err != nil {
			return nil, "", fmt.Errorf("invalid encryption key hex: %w", err)
		}
		if len(key) != keyLength {
			return nil, "", fmt.Errorf("encryption key must be %d bytes, got %d", keyLength, len(key))
		}
		return key, SourceDirectKey, nil
	}

	if cfg.Secret != "" {
		if cfg.Salt == "" {
			return nil, "", errors.New("credential secret configured without a salt")
		}
		key := pbkdf2.Key([]byte(cfg.Secret), []byte(cfg.Salt), kdfIterations, keyLength, sha256.New)
		return key, SourceDerivedSecret, nil
	}

	if cfg.SessionSecret != "" {
		if cfg.Salt == "" {
			return nil, "", errors.New("session-secret fallback configured without a salt")
		}
		key := pbkdf2.Key([]byte(cfg.SessionSecret), []byte(cfg.Salt), kdfIterations, keyLength, sha256.New)
		return key, SourceSessionFallback, nil
	}

	return nil, "", ErrNoKeyMaterial
}

// Encrypt serializes the payload and seals it. The blob layout is
// version || nonce || ciphertext || tag, hex encoded.
func (s *Service) Encrypt(payload domain.Payload) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	buf := make([]byte, 1+s.gcm.NonceSize())
	buf[0] = blobVersion
	if _, err := io.ReadFull(rand.Reader, buf[1:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.gcm.Seal(buf, buf[1:], plaintext, nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any integrity failure is
// reported as ErrDecrypt so callers can flag the row instead of treating
// garbage as a token.
func (s *Service) Decrypt(blob string) (domain.Payload, error) {
	buffer, err := hex.DecodeString(blob)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("%w: invalid hex: %w", ErrDecrypt, err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(buffer) < 1+nonceSize {
		return domain.Payload{}, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	if buffer[0] != blobVersion {
		return domain.Payload{}, fmt.Errorf("%w: unsupported blob version %d", ErrDecrypt, buffer[0])
	}

	nonce, cipherBytes := buffer[1:1+nonceSize], buffer[1+nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, cipherBytes, nil)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}

	var payload domain.Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return domain.Payload{}, fmt.Errorf("%w: invalid payload json: %w", ErrDecrypt, err)
	}

	return payload, nil
}

// KeySource reports which resolution path produced the active key.
func (s *Service) KeySource() KeySource {
	return s.source
}

// ValidateConfig runs an encrypt/decrypt round trip on a known payload and
// reports the key-resolution path in use. Run at startup so a broken key
// configuration fails before any credential is stored.
func (s *Service) ValidateConfig() (KeySource, error) {
	probe := domain.Payload{
		AccessToken: "self-test",
		ExpiresAt:   time.Unix(0, 0).UTC(),
	}

	blob, err := s.Encrypt(probe)
	if err != nil {
		return s.source, fmt.Errorf("self-test encrypt failed: %w", err)
	}

	got, err := s.Decrypt(blob)
	if err != nil {
		return s.source, fmt.Errorf("self-test decrypt failed: %w", err)
	}
	if got != probe {
		return s.source, errors.New("self-test round trip mismatch")
	}

	return s.source, nil
}
