package users

import (
	"crypto/sha1" // nolint: gosec
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/florann/databend/errors"
)

type HashMethod int

const (
	HashNone HashMethod = iota
	HashPlainText
	HashDoubleSha1
	HashSha256
	HashBcrypt
)

var hashMethodNames = map[HashMethod]string{
	HashNone:       "no_password",
	HashPlainText:  "plaintext_password",
	HashDoubleSha1: "double_sha1_password",
	HashSha256:     "sha256_password",
	HashBcrypt:     "bcrypt_password",
}

func (m HashMethod) String() string {
	if name, ok := hashMethodNames[m]; ok {
		return name
	}
	return "unknown"
}

func ParseHashMethod(text string) (HashMethod, error) {
	lower := strings.ToLower(text)
	for method, name := range hashMethodNames {
		if name == lower {
			return method, nil
		}
	}
	return HashNone, errors.Errorf("unknown hash method %s", text)
}

// BCrypt cost should increase along with computation power.
// For now, we use the library's default cost.
const bcryptCost = bcrypt.DefaultCost

// AuthInfo carries the credential hash a user authenticates against.
type AuthInfo struct {
	Method    HashMethod `json:"method"`
	HashValue []byte     `json:"hash_value,omitempty"`
}

func NewAuthInfo(method HashMethod, password string) (AuthInfo, error) {
	hash, err := HashPassword(method, password)
	if err != nil {
		return AuthInfo{}, err
	}
	return AuthInfo{Method: method, HashValue: hash}, nil
}

func HashPassword(method HashMethod, password string) ([]byte, error) {
	switch method {
	case HashNone:
		return nil, nil
	case HashPlainText:
		return []byte(password), nil
	case HashDoubleSha1:
		first := sha1.Sum([]byte(password)) // nolint: gosec
		second := sha1.Sum(first[:])        // nolint: gosec
		return second[:], nil
	case HashSha256:
		sum := sha256.Sum256([]byte(password))
		return sum[:], nil
	case HashBcrypt:
		// sha256 first so passwords longer than bcrypt's 72 byte limit still hash in full
		sum := sha256.Sum256([]byte(password))
		return bcrypt.GenerateFromPassword(sum[:], bcryptCost)
	default:
		return nil, errors.Errorf("unknown hash method %d", method)
	}
}

func (a AuthInfo) VerifyPassword(password string) bool {
	switch a.Method {
	case HashNone:
		return true
	case HashBcrypt:
		sum := sha256.Sum256([]byte(password))
		return bcrypt.CompareHashAndPassword(a.HashValue, sum[:]) == nil
	default:
		hash, err := HashPassword(a.Method, password)
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(a.HashValue, hash) == 1
	}
}
