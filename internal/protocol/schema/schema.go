package schema

import (
	"fmt"

	"github.com/danmuck/durable/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs carried in the frame header.
const (
	MsgRequest  uint32 = 1
	MsgResponse uint32 = 2
	MsgError    uint32 = 3
)

// Field IDs.
const (
	FieldCodec   uint16 = 1
	FieldInit    uint16 = 2
	FieldCommand uint16 = 3

	FieldResponse uint16 = 100

	FieldErrorKind    uint16 = 200
	FieldErrorCode    uint16 = 201
	FieldErrorMessage uint16 = 202
	FieldErrorSegment uint16 = 203
)

type Requirement struct {
	ID       uint16
	Type     uint8
	Optional bool
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgRequest: {
		{ID: FieldCodec, Type: tlv.TypeString, Optional: true},
		{ID: FieldInit, Type: tlv.TypeBytes, Optional: true},
		{ID: FieldCommand, Type: tlv.TypeBytes},
	},
	MsgResponse: {
		{ID: FieldResponse, Type: tlv.TypeBytes},
	},
	MsgError: {
		{ID: FieldErrorKind, Type: tlv.TypeString},
		{ID: FieldErrorCode, Type: tlv.TypeString, Optional: true},
		{ID: FieldErrorMessage, Type: tlv.TypeString, Optional: true},
		{ID: FieldErrorSegment, Type: tlv.TypeString, Optional: true},
	},
}

// Validate enforces required fields and field types for a message type.
// Optional fields are type checked only when present; unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	log.Debug().Msgf("schema.Validate message_type=%d fields=%d", messageType, len(fields))
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Msgf("schema.Validate unknown message_type=%d", messageType)
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Optional {
				continue
			}
			log.Error().Msgf(
				"schema.Validate missing field message_type=%d field_id=%d",
				messageType,
				req.ID,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().Msgf(
				"schema.Validate type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType,
				req.ID,
				f.Type,
				req.Type,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
