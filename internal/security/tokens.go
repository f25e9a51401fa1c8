package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures. Verify returns exactly one of these for any rejected token;
// errors from the JWT library never escape this package.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrMalformedToken   = errors.New("token malformed")
)

// ErrInvalidTTL is returned by Issue for a lifetime shorter than one second,
// the resolution of the exp claim.
var ErrInvalidTTL = errors.New("token ttl must be at least 1s")

// Payload is the identity carried by access and refresh tokens.
type Payload struct {
	UserID   string
	DeviceID string
}

// Claims is the JWT claim set for both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId"`
}

// TokenCodec issues and verifies HS256 tokens signed with one process-wide secret.
// It holds no mutable state after construction and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a TokenCodec.
type Option func(*TokenCodec)

// WithClock overrides time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns a codec signing with secret. The secret is copied.
func NewTokenCodec(secret []byte, opts ...Option) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidSecret
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Issue signs p with exp = now + ttl. Every token gets a random jti, so two tokens
// for the same payload issued in the same second still differ.
func (c *TokenCodec) Issue(p Payload, ttl time.Duration) (string, error) {
	if p.UserID == "" || p.DeviceID == "" {
		return "", errors.New("token payload requires user and device")
	}
	if ttl < time.Second {
		return "", ErrInvalidTTL
	}
	now := c.now().UTC().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   p.UserID,
		DeviceID: p.DeviceID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks the signature, then the claims, and returns the payload.
//
// The HMAC over everything before the last '.' is checked before any segment is
// decoded, so changing any character of an issued token, separators included,
// yields ErrInvalidSignature. ErrMalformedToken is left for input that is not
// dot-separated at all and for signed tokens whose claims do not decode.
func (c *TokenCodec) Verify(token string) (Payload, error) {
	if !strings.Contains(token, ".") {
		return Payload{}, ErrMalformedToken
	}
	if strings.Count(token, ".") != 2 {
		return Payload{}, ErrInvalidSignature
	}
	last := strings.LastIndexByte(token, '.')
	sig, err := base64.RawURLEncoding.Strict().DecodeString(token[last+1:])
	if err != nil {
		return Payload{}, ErrInvalidSignature
	}
	if err := jwt.SigningMethodHS256.Verify(token[:last], sig, c.secret); err != nil {
		return Payload{}, ErrInvalidSignature
	}

	claims := &Claims{}
	_, err = c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Payload{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Payload{}, ErrInvalidSignature
		default:
			return Payload{}, ErrMalformedToken
		}
	}
	return claims.payload()
}

// DecodeUnsafe returns the payload without checking signature or expiry.
// Callers must not use the result to authorize anything.
func (c *TokenCodec) DecodeUnsafe(token string) (Payload, error) {
	if token == "" {
		return Payload{}, ErrMalformedToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Payload{}, ErrMalformedToken
	}
	return claims.payload()
}

func (c *Claims) payload() (Payload, error) {
	if c.UserID == "" || c.DeviceID == "" {
		return Payload{}, ErrMalformedToken
	}
	return Payload{UserID: c.UserID, DeviceID: c.DeviceID}, nil
}
