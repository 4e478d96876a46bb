// Package person is an example object kind keyed by a person's email. It
// holds a name and birthday and answers questions about them.
package person

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/object"
)

// Binding is the registry name person objects are served under.
const Binding = "person"

// Command types.
const (
	CmdCalculateNextBirthday = "calculate_next_birthday"
	CmdGetAge                = "get_age"
	CmdGetName               = "get_name"
	CmdRename                = "rename"
)

// Rejection codes.
const (
	RejectNotYetBorn     = "not_yet_born"
	RejectInvalidInit    = "invalid_init"
	RejectInvalidName    = "invalid_name"
	RejectUnknownCommand = "unknown_command"
)

type Init struct {
	Name     string    `json:"name" cbor:"name"`
	Birthday time.Time `json:"birthday" cbor:"birthday"`
}

type Command struct {
	Type string `json:"type" cbor:"type"`
	Name string `json:"name,omitempty" cbor:"name,omitempty"`
}

type Response struct {
	Name         string     `json:"name,omitempty" cbor:"name,omitempty"`
	Age          *int       `json:"age,omitempty" cbor:"age,omitempty"`
	NextBirthday *time.Time `json:"next_birthday,omitempty" cbor:"next_birthday,omitempty"`
}

// State is what a person object persists.
type State struct {
	Name         string    `json:"name" cbor:"name"`
	Birthday     time.Time `json:"birthday" cbor:"birthday"`
	NextBirthday time.Time `json:"next_birthday,omitempty" cbor:"next_birthday,omitempty"`
}

func (s State) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("person: state missing name")
	}
	if s.Birthday.IsZero() {
		return errors.New("person: state missing birthday")
	}
	return nil
}

// Kind implements object.Kind for persons. Now defaults to time.Now.
type Kind struct {
	Now func() time.Time
}

var (
	_ object.Kind[Init, Command, Response, State] = (*Kind)(nil)
	_ object.AlarmHandler[Response, State]        = (*Kind)(nil)
)

// NewDispatcher wires a person Kind into a dispatcher.
func NewDispatcher(c codec.Codec, opts ...object.Option) *object.Dispatcher[Init, Command, Response, State] {
	return object.NewDispatcher[Init, Command, Response, State](&Kind{}, c, opts...)
}

func (k *Kind) now() time.Time {
	if k.Now != nil {
		return k.Now().UTC()
	}
	return time.Now().UTC()
}

func (k *Kind) Construct(_ context.Context, _ *object.Ctx, init Init) (State, error) {
	name := strings.TrimSpace(init.Name)
	if name == "" {
		return State{}, object.Reject(RejectInvalidInit, "name is required")
	}
	if init.Birthday.IsZero() {
		return State{}, object.Reject(RejectInvalidInit, "birthday is required")
	}
	return State{Name: name, Birthday: init.Birthday.UTC()}, nil
}

func (k *Kind) Handle(_ context.Context, _ *object.Ctx, state State, cmd Command) (Response, State, error) {
	switch cmd.Type {
	case CmdCalculateNextBirthday:
		next, err := NextBirthday(state.Birthday, k.now())
		if err != nil {
			return Response{}, state, err
		}
		state.NextBirthday = next
		return Response{Name: state.Name, NextBirthday: &next}, state, nil
	case CmdGetAge:
		age, err := Age(state.Birthday, k.now())
		if err != nil {
			return Response{}, state, err
		}
		return Response{Name: state.Name, Age: &age}, state, nil
	case CmdGetName:
		return Response{Name: state.Name}, state, nil
	case CmdRename:
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return Response{}, state, object.Reject(RejectInvalidName, "name is required")
		}
		state.Name = name
		return Response{Name: state.Name}, state, nil
	default:
		return Response{}, state, object.Reject(RejectUnknownCommand, cmd.Type)
	}
}

// Alarm refreshes the cached next birthday.
func (k *Kind) Alarm(ctx context.Context, obj *object.Ctx, state State) (Response, State, error) {
	return k.Handle(ctx, obj, state, Command{Type: CmdCalculateNextBirthday})
}

// NextBirthday returns the first anniversary of birthday strictly after now.
func NextBirthday(birthday, now time.Time) (time.Time, error) {
	if birthday.After(now) {
		return time.Time{}, object.Reject(RejectNotYetBorn, birthday.Format(time.DateOnly))
	}
	birthday = birthday.UTC()
	next := anniversary(birthday, now.Year())
	if !next.After(now) {
		next = anniversary(birthday, now.Year()+1)
	}
	return next, nil
}

// Age returns completed years between birthday and now.
func Age(birthday, now time.Time) (int, error) {
	if birthday.After(now) {
		return 0, object.Reject(RejectNotYetBorn, birthday.Format(time.DateOnly))
	}
	birthday = birthday.UTC()
	age := now.Year() - birthday.Year()
	if anniversary(birthday, now.Year()).After(now) {
		age--
	}
	return age, nil
}

func anniversary(birthday time.Time, year int) time.Time {
	return time.Date(year, birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
}
