package security

import (
	"errors"
	"os"
	"strings"
)

// ErrInvalidSecret is returned when the signing secret is empty.
var ErrInvalidSecret = errors.New("invalid signing secret")

const secretFilePrefix = "file://"

// LoadSecret returns the signing secret. s is either the secret itself or
// "file://<path>", in which case the file content (trimmed) is used.
func LoadSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, secretFilePrefix) {
		b, err := os.ReadFile(strings.TrimPrefix(s, secretFilePrefix))
		if err != nil {
			return nil, err
		}
		s = strings.TrimSpace(string(b))
	}
	if s == "" {
		return nil, ErrInvalidSecret
	}
	return []byte(s), nil
}
