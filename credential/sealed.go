package credential

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/argon2"
)

const (
	sealName   = "rateloop-credentials"
	saltLength = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLength    = 64
)

// DeriveKeys stretches a passphrase into an HMAC key and an AES-256 key.
func DeriveKeys(passphrase string, salt []byte) (hashKey, blockKey []byte) {
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLength)
	return key[:32], key[32:]
}

func codec(passphrase string, salt []byte) *securecookie.SecureCookie {
	hashKey, blockKey := DeriveKeys(passphrase, salt)
	s := securecookie.New(hashKey, blockKey)
	s.SetSerializer(securecookie.JSONEncoder{})
	s.MaxAge(0)
	s.MaxLength(0)
	return s
}

// Seal encrypts and authenticates a credentials document. The result is
// "<salt>.<token>" and can be reversed with Open.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	token, err := codec(passphrase, salt).Encode(sealName, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}

	out := base64.RawURLEncoding.EncodeToString(salt) + "." + token + "\n"
	return []byte(out), nil
}

// Open reverses Seal.
func Open(sealed []byte, passphrase string) ([]byte, error) {
	sealed = bytes.TrimSpace(sealed)
	saltPart, token, ok := bytes.Cut(sealed, []byte("."))
	if !ok || len(token) == 0 {
		return nil, fmt.Errorf("%w: malformed input", ErrWrongPassphrase)
	}

	salt, err := base64.RawURLEncoding.DecodeString(string(saltPart))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed salt", ErrWrongPassphrase)
	}

	var plaintext []byte
	if err := codec(passphrase, salt).Decode(sealName, string(token), &plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongPassphrase, err)
	}
	return plaintext, nil
}

// SealFile validates the credentials file at in and writes its sealed form
// to out. It returns the number of credentials sealed.
func SealFile(in, out, passphrase string) (int, error) {
	data, err := os.ReadFile(in)
	if err != nil {
		return 0, fmt.Errorf("failed to read credentials file: %w", err)
	}

	creds, err := parseFile(in, data, passphrase)
	if err != nil {
		return 0, err
	}
	if len(creds) == 0 {
		return 0, ErrNoCredentials
	}

	sealed, err := Seal(data, passphrase)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(out, sealed, 0600); err != nil {
		return 0, fmt.Errorf("failed to write sealed credentials: %w", err)
	}
	return len(creds), nil
}
