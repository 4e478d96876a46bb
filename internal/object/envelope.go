package object

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/protocol/frame"
	"github.com/danmuck/durable/internal/protocol/schema"
	"github.com/danmuck/durable/internal/protocol/tlv"
)

// Segment names reported by DecodeError.
const (
	SegmentEnvelope = "envelope"
	SegmentInit     = "init"
	SegmentCommand  = "command"
)

var (
	ErrCodecMismatch   = errors.New("object: codec mismatch")
	ErrUnexpectedFrame = errors.New("object: unexpected message type")
)

// Envelope is one request: an optional init payload and a required command.
type Envelope[I, C any] struct {
	Init    *I
	Command C
}

// NewEnvelope builds a command-only envelope.
func NewEnvelope[I, C any](cmd C) Envelope[I, C] {
	return Envelope[I, C]{Command: cmd}
}

// WithInit returns a copy of e carrying init.
func (e Envelope[I, C]) WithInit(init I) Envelope[I, C] {
	e.Init = &init
	return e
}

func (e Envelope[I, C]) HasInit() bool {
	return e.Init != nil
}

// DecodeError reports which envelope segment failed to decode.
type DecodeError struct {
	Segment string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("object: decode %s: %v", e.Segment, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// rawEnvelope is the outer shape, before payload decoding.
type rawEnvelope struct {
	MessageID uint64
	Codec     string
	Init      []byte
	HasInit   bool
	Command   []byte
}

// EncodeEnvelope frames env for the wire.
func EncodeEnvelope[I, C any](c codec.Codec, messageID uint64, env Envelope[I, C]) ([]byte, error) {
	cmd, err := c.Marshal(env.Command)
	if err != nil {
		return nil, fmt.Errorf("object: encode command: %w", err)
	}
	fields := []tlv.Field{tlv.String(schema.FieldCodec, c.Name())}
	if env.Init != nil {
		init, err := c.Marshal(*env.Init)
		if err != nil {
			return nil, fmt.Errorf("object: encode init: %w", err)
		}
		fields = append(fields, tlv.Bytes(schema.FieldInit, init))
	}
	fields = append(fields, tlv.Bytes(schema.FieldCommand, cmd))
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgRequest,
		},
		Payload: tlv.EncodeFields(fields),
	})
}

// DecodeEnvelope decodes raw in two stages: the framed field layout first,
// which settles whether an init segment is present, then each payload with c.
func DecodeEnvelope[I, C any](c codec.Codec, raw []byte) (Envelope[I, C], error) {
	outer, err := decodeRawEnvelope(raw)
	if err != nil {
		return Envelope[I, C]{}, &DecodeError{Segment: SegmentEnvelope, Err: err}
	}
	if outer.Codec != "" && !strings.EqualFold(outer.Codec, c.Name()) {
		return Envelope[I, C]{}, &DecodeError{
			Segment: SegmentEnvelope,
			Err:     fmt.Errorf("%w: got %q want %q", ErrCodecMismatch, outer.Codec, c.Name()),
		}
	}

	var env Envelope[I, C]
	if outer.HasInit {
		var init I
		if err := c.Unmarshal(outer.Init, &init); err != nil {
			return Envelope[I, C]{}, &DecodeError{Segment: SegmentInit, Err: err}
		}
		env.Init = &init
	}
	if err := c.Unmarshal(outer.Command, &env.Command); err != nil {
		return Envelope[I, C]{}, &DecodeError{Segment: SegmentCommand, Err: err}
	}
	return env, nil
}

func decodeRawEnvelope(raw []byte) (rawEnvelope, error) {
	f, err := frame.Unmarshal(raw)
	if err != nil {
		return rawEnvelope{}, err
	}
	if f.Header.MessageType != schema.MsgRequest {
		return rawEnvelope{}, fmt.Errorf("%w: %d", ErrUnexpectedFrame, f.Header.MessageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return rawEnvelope{}, err
	}
	if err := schema.Validate(schema.MsgRequest, fields); err != nil {
		return rawEnvelope{}, err
	}
	out := rawEnvelope{
		MessageID: f.Header.MessageID,
		Codec:     tlv.GetString(fields, schema.FieldCodec),
	}
	out.Init, out.HasInit = tlv.GetBytes(fields, schema.FieldInit)
	out.Command, _ = tlv.GetBytes(fields, schema.FieldCommand)
	return out, nil
}
