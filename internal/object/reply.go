package object

import (
	"errors"
	"fmt"

	"github.com/danmuck/durable/internal/protocol/frame"
	"github.com/danmuck/durable/internal/protocol/schema"
	"github.com/danmuck/durable/internal/protocol/tlv"
)

// RequestID returns the message id of a request frame, or 0 when raw is too
// short to carry a header.
func RequestID(raw []byte) uint64 {
	h, err := frame.DecodeHeader(raw)
	if err != nil {
		return 0
	}
	return h.MessageID
}

// EncodeReply frames the outcome of one dispatch. A nil dispatchErr produces
// a response frame carrying out; anything else produces an error frame.
func EncodeReply(messageID uint64, out []byte, dispatchErr error) ([]byte, error) {
	if dispatchErr == nil {
		return frame.Marshal(frame.Frame{
			Header: frame.Header{
				MessageID:   messageID,
				MessageType: schema.MsgResponse,
				Flags:       frame.FlagIsResponse,
			},
			Payload: tlv.EncodeFields([]tlv.Field{tlv.Bytes(schema.FieldResponse, out)}),
		})
	}

	var de *DispatchError
	if !errors.As(dispatchErr, &de) {
		de = handlerFailure(dispatchErr)
	}
	fields := []tlv.Field{tlv.String(schema.FieldErrorKind, KindName(de.Kind))}
	if de.Rejection != nil {
		fields = append(fields,
			tlv.String(schema.FieldErrorCode, de.Rejection.Code),
			tlv.String(schema.FieldErrorMessage, de.Rejection.Message),
		)
	} else if de.Err != nil {
		fields = append(fields, tlv.String(schema.FieldErrorMessage, de.Err.Error()))
	}
	if de.Segment != "" {
		fields = append(fields, tlv.String(schema.FieldErrorSegment, de.Segment))
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: schema.MsgError,
			Flags:       frame.FlagIsResponse | frame.FlagIsError,
		},
		Payload: tlv.EncodeFields(fields),
	})
}

// DecodeReply is the inverse of EncodeReply. An error frame comes back as a
// *DispatchError; a malformed frame comes back as a plain error.
func DecodeReply(raw []byte) ([]byte, error) {
	f, err := frame.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("object: decode reply: %w", err)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("object: decode reply: %w", err)
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return nil, fmt.Errorf("object: decode reply: %w", err)
	}

	switch f.Header.MessageType {
	case schema.MsgResponse:
		out, _ := tlv.GetBytes(fields, schema.FieldResponse)
		return out, nil
	case schema.MsgError:
		de := &DispatchError{
			Kind:    KindByName(tlv.GetString(fields, schema.FieldErrorKind)),
			Segment: tlv.GetString(fields, schema.FieldErrorSegment),
		}
		msg := tlv.GetString(fields, schema.FieldErrorMessage)
		if code := tlv.GetString(fields, schema.FieldErrorCode); code != "" {
			de.Rejection = &Rejection{Code: code, Message: msg}
		} else if msg != "" {
			de.Err = errors.New(msg)
		}
		return nil, de
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedFrame, f.Header.MessageType)
	}
}
