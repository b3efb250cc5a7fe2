package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher はパスワードのハッシュ化と照合を行う。
// 新規ハッシュはargon2idのエンコード形式。旧システムから移行したbcryptハッシュ（$2a$/$2b$）も照合できる。
type PasswordHasher struct {
	config argon2.Config
}

// NewPasswordHasher は既定パラメータのPasswordHasherを生成する。
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{config: argon2.DefaultConfig()}
}

// NewPasswordHasherWithConfig は任意パラメータのPasswordHasherを生成する。
func NewPasswordHasherWithConfig(config argon2.Config) *PasswordHasher {
	return &PasswordHasher{config: config}
}

// Hash はパスワードをargon2idでハッシュ化する。
func (h *PasswordHasher) Hash(password string) (string, error) {
	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(encoded), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
// 不一致はエラーではなくfalseを返す。
func (h *PasswordHasher) Verify(encoded, password string) (bool, error) {
	if isBcryptHash(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to verify legacy password hash: %w", err)
		}
		return true, nil
	}

	ok, err := argon2.VerifyEncoded([]byte(password), []byte(encoded))
	if err != nil {
		return false, fmt.Errorf("failed to verify password hash: %w", err)
	}
	return ok, nil
}

func isBcryptHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
