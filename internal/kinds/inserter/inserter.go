// Package inserter is an example object kind that stores arbitrary JSON
// values in its own storage under caller-chosen keys.
package inserter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/object"
	"github.com/danmuck/durable/internal/storage"
	"github.com/rs/zerolog/log"
)

const Binding = "inserter"

// DataPrefix scopes caller records away from the state record.
const DataPrefix = "data/"

const (
	CmdInsert = "insert"
	CmdGet    = "get"
	CmdDelete = "delete"
	CmdList   = "list"
)

const (
	RejectInvalidKey      = "invalid_key"
	RejectInvalidValue    = "invalid_value"
	RejectListUnsupported = "list_unsupported"
	RejectUnknownCommand  = "unknown_command"
)

type Init struct{}

type Command struct {
	Type  string          `json:"type" cbor:"type"`
	Key   string          `json:"key,omitempty" cbor:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty" cbor:"value,omitempty"`
}

type Response struct {
	Inserted bool            `json:"inserted,omitempty" cbor:"inserted,omitempty"`
	Deleted  bool            `json:"deleted,omitempty" cbor:"deleted,omitempty"`
	Found    bool            `json:"found,omitempty" cbor:"found,omitempty"`
	Value    json.RawMessage `json:"value,omitempty" cbor:"value,omitempty"`
	Keys     []string        `json:"keys,omitempty" cbor:"keys,omitempty"`
}

// State tracks how many data records are live.
type State struct {
	Count int `json:"count" cbor:"count"`
}

func (s State) Validate() error {
	if s.Count < 0 {
		return fmt.Errorf("inserter: negative count %d", s.Count)
	}
	return nil
}

type Kind struct{}

var _ object.Kind[Init, Command, Response, State] = Kind{}

func NewDispatcher(c codec.Codec, opts ...object.Option) *object.Dispatcher[Init, Command, Response, State] {
	return object.NewDispatcher[Init, Command, Response, State](Kind{}, c, opts...)
}

// Construct counts records left by an earlier incarnation, since a repeated
// init replaces the state record but not the data records.
func (Kind) Construct(ctx context.Context, obj *object.Ctx, _ Init) (State, error) {
	lister, ok := obj.Storage.(storage.Lister)
	if !ok {
		return State{}, nil
	}
	keys, err := lister.List(ctx, DataPrefix)
	if err != nil {
		return State{}, err
	}
	return State{Count: len(keys)}, nil
}

func (Kind) Handle(ctx context.Context, obj *object.Ctx, state State, cmd Command) (Response, State, error) {
	if cmd.Type == CmdList {
		return list(ctx, obj, state)
	}
	key := strings.TrimSpace(cmd.Key)
	if key == "" {
		return Response{}, state, object.Reject(RejectInvalidKey, "key is required")
	}
	record := DataPrefix + key

	switch cmd.Type {
	case CmdInsert:
		if len(cmd.Value) == 0 || !json.Valid(cmd.Value) {
			return Response{}, state, object.Reject(RejectInvalidValue, "value must be JSON")
		}
		_, existed, err := obj.Storage.Get(ctx, record)
		if err != nil {
			return Response{}, state, err
		}
		if err := obj.Storage.Put(ctx, record, cmd.Value); err != nil {
			return Response{}, state, err
		}
		if !existed {
			state.Count++
		}
		log.Debug().Msgf("inserter.Kind.Handle insert key=%q record=%q count=%d", obj.Key, key, state.Count)
		return Response{Inserted: true}, state, nil
	case CmdGet:
		val, ok, err := obj.Storage.Get(ctx, record)
		if err != nil {
			return Response{}, state, err
		}
		return Response{Found: ok, Value: val}, state, nil
	case CmdDelete:
		_, existed, err := obj.Storage.Get(ctx, record)
		if err != nil {
			return Response{}, state, err
		}
		if !existed {
			return Response{}, state, nil
		}
		if err := obj.Storage.Delete(ctx, record); err != nil {
			return Response{}, state, err
		}
		if state.Count > 0 {
			state.Count--
		}
		return Response{Deleted: true}, state, nil
	default:
		return Response{}, state, object.Reject(RejectUnknownCommand, cmd.Type)
	}
}

func list(ctx context.Context, obj *object.Ctx, state State) (Response, State, error) {
	lister, ok := obj.Storage.(storage.Lister)
	if !ok {
		return Response{}, state, object.Reject(RejectListUnsupported, "storage cannot enumerate keys")
	}
	keys, err := lister.List(ctx, DataPrefix)
	if err != nil {
		return Response{}, state, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, DataPrefix))
	}
	return Response{Keys: out}, state, nil
}
