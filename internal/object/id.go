package object

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("object: invalid id")

// idNamespace seeds name-derived ids so that the same (binding, name) pair
// always maps to the same object.
var idNamespace = uuid.MustParse("6f1c6a52-3d0b-4c47-9d3e-0c8f7a51d2b4")

// IDFromName derives a stable id for name within binding.
func IDFromName(binding, name string) string {
	return encodeID(uuid.NewSHA1(idNamespace, []byte(binding+"\x00"+name)))
}

// UniqueID returns a fresh random id.
func UniqueID() string {
	return encodeID(uuid.New())
}

// ParseID accepts 32 hex chars or a canonical UUID and returns the 32 char
// lowercase form.
func ParseID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == 32 {
		if _, err := hex.DecodeString(s); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		return strings.ToLower(s), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return encodeID(u), nil
}

func encodeID(u uuid.UUID) string {
	return hex.EncodeToString(u[:])
}
