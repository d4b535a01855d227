// Package token issues and verifies the signed, expiring credentials used by
// the session layer. Access and refresh tokens are HS256 JWTs signed with
// distinct secrets and carrying a class claim so one can never stand in for
// the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class distinguishes short-lived access tokens from long-lived refresh tokens.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

var (
	ErrMalformed        = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token has expired")
)

// Claims is the payload of every token. Profile fields are only filled for
// access tokens.
type Claims struct {
	Class    Class  `json:"cls"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// Subject identifies who a token is issued for.
type Subject struct {
	UserID   string
	Username string
	Email    string
	FullName string
}

// Issue signs a token of the given class for subject, valid for ttl.
func Issue(subject Subject, class Class, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if class == ClassAccess {
		claims.Username = subject.Username
		claims.Email = subject.Email
		claims.FullName = subject.FullName
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", class, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and class, and returns the claims.
// Failures are always one of ErrMalformed, ErrInvalidSignature or ErrExpired.
func Verify(tokenString string, class Class, secret []byte) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}

	if !tok.Valid || claims.Subject == "" || claims.Class != class {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Key is the signing secret and lifetime of one token class.
type Key struct {
	Secret []byte
	TTL    time.Duration
}

// Codec holds the keys for both classes.
type Codec struct {
	access  Key
	refresh Key
}

// NewCodec validates the key pair and returns a Codec.
func NewCodec(access, refresh Key) (*Codec, error) {
	if len(access.Secret) == 0 || len(refresh.Secret) == 0 {
		return nil, errors.New("token secrets must not be empty")
	}
	if string(access.Secret) == string(refresh.Secret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if access.TTL <= 0 || refresh.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Codec{access: access, refresh: refresh}, nil
}

func (c *Codec) key(class Class) Key {
	if class == ClassRefresh {
		return c.refresh
	}
	return c.access
}

// Issue signs a token of the given class with that class's key.
func (c *Codec) Issue(class Class, subject Subject) (string, error) {
	k := c.key(class)
	return Issue(subject, class, k.Secret, k.TTL)
}

// Verify checks a token against the key of the expected class.
func (c *Codec) Verify(tokenString string, class Class) (*Claims, error) {
	return Verify(tokenString, class, c.key(class).Secret)
}

// TTL returns the lifetime of tokens of the given class.
func (c *Codec) TTL(class Class) time.Duration {
	return c.key(class).TTL
}
