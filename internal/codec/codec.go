// Package codec converts typed init payloads, commands, responses and
// persisted state to and from bytes.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var ErrUnknownCodec = errors.New("codec: unknown codec")

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// Codec is the byte-level contract shared by both ends of a binding.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ByName resolves a configured codec name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameJSON:
		return JSON{}, nil
	case NameCBOR:
		return NewCBOR()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSON encodes with encoding/json.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal rejects trailing data after the first JSON value.
func (JSON) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("codec: trailing data after json value")
	}
	return nil
}

// CBOR encodes with deterministic core encoding rules so equal values always
// produce equal bytes.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	enc, err := encOpts.EncMode()
	if err != nil {
		return CBOR{}, fmt.Errorf("codec: cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBOR{}, fmt.Errorf("codec: cbor dec mode: %w", err)
	}
	return CBOR{enc: enc, dec: dec}, nil
}

func (CBOR) Name() string { return NameCBOR }

func (c CBOR) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
