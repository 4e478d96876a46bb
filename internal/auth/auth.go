// Package auth checks bearer tokens presented to the object routes.
//
// It makes no policy decisions and stores nothing.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const bearerPrefix = "Bearer "

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticTokens accepts any of a fixed set of shared tokens. Empty entries
// never match.
type StaticTokens []string

func (s StaticTokens) Validate(token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	ok := 0
	for _, want := range s {
		if want == "" {
			continue
		}
		ok |= subtle.ConstantTimeCompare([]byte(want), []byte(token))
	}
	if ok != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// Authorization formats token as an Authorization header value.
func Authorization(token string) string {
	return bearerPrefix + token
}
