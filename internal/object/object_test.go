package object

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/durable/internal/codec"
	"github.com/danmuck/durable/internal/protocol/frame"
	"github.com/danmuck/durable/internal/protocol/schema"
	"github.com/danmuck/durable/internal/protocol/tlv"
	"github.com/danmuck/durable/internal/storage"
	"github.com/danmuck/durable/internal/storage/memory"
	"github.com/danmuck/durable/internal/testutil/testlog"
)

type counterInit struct {
	Start int    `json:"start"`
	Label string `json:"label"`
}

type counterCmd struct {
	Type string `json:"type"`
	By   int    `json:"by,omitempty"`
}

type counterResp struct {
	Value int `json:"value"`
	Extra any `json:"extra,omitempty"`
}

type counterState struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

func (s counterState) Validate() error {
	if s.Label == "" {
		return errors.New("missing label")
	}
	return nil
}

type counterKind struct {
	mu         sync.Mutex
	constructs int
	seen       []counterState
}

func (k *counterKind) Construct(_ context.Context, _ *Ctx, init counterInit) (counterState, error) {
	k.mu.Lock()
	k.constructs++
	k.mu.Unlock()
	if init.Start < 0 {
		return counterState{}, Reject("negative_start", "start must be >= 0")
	}
	return counterState{Value: init.Start, Label: init.Label}, nil
}

func (k *counterKind) Handle(_ context.Context, _ *Ctx, state counterState, cmd counterCmd) (counterResp, counterState, error) {
	k.mu.Lock()
	k.seen = append(k.seen, state)
	k.mu.Unlock()
	switch cmd.Type {
	case "add":
		state.Value += cmd.By
		return counterResp{Value: state.Value}, state, nil
	case "get":
		return counterResp{Value: state.Value}, state, nil
	case "reject":
		state.Value = -1
		return counterResp{}, state, Reject("nope", "rejected on purpose")
	case "explode":
		return counterResp{}, state, errors.New("plain failure")
	case "blank":
		state.Label = ""
		return counterResp{Value: state.Value}, state, nil
	case "unencodable":
		state.Value = 999
		return counterResp{Extra: make(chan int)}, state, nil
	default:
		return counterResp{}, state, Reject("unknown_command", cmd.Type)
	}
}

func (k *counterKind) Alarm(_ context.Context, _ *Ctx, state counterState) (counterResp, counterState, error) {
	state.Value *= 2
	return counterResp{Value: state.Value}, state, nil
}

// flakyHandle fails the first failPuts writes and every read when getErr is set.
type flakyHandle struct {
	storage.Handle
	mu       sync.Mutex
	failPuts int
	puts     int
	getErr   error
}

func (h *flakyHandle) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if h.getErr != nil {
		return nil, false, h.getErr
	}
	return h.Handle.Get(ctx, key)
}

func (h *flakyHandle) Put(ctx context.Context, key string, value []byte) error {
	h.mu.Lock()
	h.puts++
	fail := h.failPuts > 0
	if fail {
		h.failPuts--
	}
	h.mu.Unlock()
	if fail {
		return errors.New("disk on fire")
	}
	return h.Handle.Put(ctx, key, value)
}

func newHandle() storage.Handle {
	return memory.New().Handle(storage.Namespace("counter", "k1"))
}

func encode(t *testing.T, c codec.Codec, env Envelope[counterInit, counterCmd]) []byte {
	t.Helper()
	raw, err := EncodeEnvelope(c, 1, env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return raw
}

func decodeResp(t *testing.T, c codec.Codec, out []byte) counterResp {
	t.Helper()
	var resp counterResp
	if err := c.Unmarshal(out, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func dispatchErr(t *testing.T, err error, kind error) *DispatchError {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DispatchError, got %T", err)
	}
	return de
}

func TestEnvelopeRoundTrip(t *testing.T) {
	testlog.Start(t)
	cbor, err := codec.NewCBOR()
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	for _, c := range []codec.Codec{codec.JSON{}, cbor} {
		env := NewEnvelope[counterInit](counterCmd{Type: "add", By: 2}).WithInit(counterInit{Start: 3, Label: "x"})
		raw := encode(t, c, env)
		got, err := DecodeEnvelope[counterInit, counterCmd](c, raw)
		if err != nil {
			t.Fatalf("%s decode: %v", c.Name(), err)
		}
		if !got.HasInit() || *got.Init != *env.Init || got.Command != env.Command {
			t.Fatalf("%s round trip mismatch: %+v", c.Name(), got)
		}

		bare := encode(t, c, NewEnvelope[counterInit](counterCmd{Type: "get"}))
		got, err = DecodeEnvelope[counterInit, counterCmd](c, bare)
		if err != nil {
			t.Fatalf("%s decode bare: %v", c.Name(), err)
		}
		if got.HasInit() {
			t.Fatalf("%s bare envelope decoded with init", c.Name())
		}
	}
}

func rawRequest(t *testing.T, fields ...tlv.Field) []byte {
	t.Helper()
	raw, err := frame.Marshal(frame.Frame{
		Header:  frame.Header{MessageID: 7, MessageType: schema.MsgRequest},
		Payload: tlv.EncodeFields(fields),
	})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return raw
}

func TestDecodeEnvelopeSegments(t *testing.T) {
	testlog.Start(t)
	c := codec.JSON{}
	cases := []struct {
		name    string
		raw     []byte
		segment string
	}{
		{"garbage", []byte("not a frame"), SegmentEnvelope},
		{"missing command", rawRequest(t, tlv.Bytes(schema.FieldInit, []byte(`{}`))), SegmentEnvelope},
		{"codec mismatch", rawRequest(t, tlv.String(schema.FieldCodec, "cbor"), tlv.Bytes(schema.FieldCommand, []byte(`{}`))), SegmentEnvelope},
		{"bad init", rawRequest(t, tlv.Bytes(schema.FieldInit, []byte(`{`)), tlv.Bytes(schema.FieldCommand, []byte(`{"type":"get"}`))), SegmentInit},
		{"bad command", rawRequest(t, tlv.Bytes(schema.FieldCommand, []byte(`[1,2]`))), SegmentCommand},
	}
	for _, tc := range cases {
		_, err := DecodeEnvelope[counterInit, counterCmd](c, tc.raw)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected DecodeError, got %v", tc.name, err)
		}
		if de.Segment != tc.segment {
			t.Fatalf("%s: segment=%q want %q", tc.name, de.Segment, tc.segment)
		}
	}
}

func TestStateRoundTripAndInitThenLoad(t *testing.T) {
	testlog.Start(t)
	c := codec.JSON{}
	kind := &counterKind{}
	lc := NewLifecycle[counterInit, counterCmd, counterResp, counterState](kind, c)
	obj := &Ctx{Key: "k1", Storage: newHandle()}
	ctx := context.Background()

	init := counterInit{Start: 5, Label: "five"}
	first, err := lc.Resolve(ctx, obj, NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(init))
	if err != nil {
		t.Fatalf("resolve init: %v", err)
	}
	if first.Status != StatusInitialized {
		t.Fatalf("status=%s want initialized", first.Status)
	}

	second, err := lc.Resolve(ctx, obj, NewEnvelope[counterInit](counterCmd{Type: "get"}))
	if err != nil {
		t.Fatalf("resolve load: %v", err)
	}
	if second.Status != StatusLoaded || second.State != first.State {
		t.Fatalf("loaded %+v (%s), want %+v", second.State, second.Status, first.State)
	}
}

func TestMissingIsUninitializedWithoutWrite(t *testing.T) {
	testlog.Start(t)
	kind := &counterKind{}
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](kind, codec.JSON{})
	backend := memory.New()
	ns := storage.Namespace("counter", "fresh")

	_, err := d.Handle(context.Background(), "fresh", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), backend.Handle(ns))
	dispatchErr(t, err, ErrUninitialized)
	if n := backend.Len(ns); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
	if kind.constructs != 0 || len(kind.seen) != 0 {
		t.Fatalf("kind hooks ran for missing object: constructs=%d handles=%d", kind.constructs, len(kind.seen))
	}
}

func TestHandlerNeverSeesDefaultState(t *testing.T) {
	testlog.Start(t)
	kind := &counterKind{}
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](kind, codec.JSON{})
	h := newHandle()
	ctx := context.Background()

	_, _ = d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h)
	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "add", By: 1}).WithInit(counterInit{Label: "a"})), h); err != nil {
		t.Fatalf("init request: %v", err)
	}
	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h); err != nil {
		t.Fatalf("load request: %v", err)
	}
	for i, s := range kind.seen {
		if s == (counterState{}) {
			t.Fatalf("handler call %d saw default state", i)
		}
	}
	if len(kind.seen) != 2 {
		t.Fatalf("handler calls=%d want 2", len(kind.seen))
	}
}

func TestDispatchPersistsHandlerState(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := newHandle()
	ctx := context.Background()

	out, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "add", By: 4}).WithInit(counterInit{Start: 1, Label: "c"})), h)
	if err != nil {
		t.Fatalf("init+add: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 5 {
		t.Fatalf("value=%d want 5", got)
	}
	out, err = d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 5 {
		t.Fatalf("persisted value=%d want 5", got)
	}
}

func TestHandlerRejectionDoesNotPersist(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := newHandle()
	ctx := context.Background()
	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Start: 2, Label: "r"})), h); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "reject"})), h)
	de := dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != "nope" {
		t.Fatalf("unexpected rejection: %+v", de.Rejection)
	}

	_, err = d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "explode"})), h)
	de = dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != RejectInternal || de.Rejection.Message != "plain failure" {
		t.Fatalf("unexpected internal rejection: %+v", de.Rejection)
	}

	_, err = d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "unencodable"})), h)
	de = dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != RejectEncode {
		t.Fatalf("unexpected encode rejection: %+v", de.Rejection)
	}

	out, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 2 {
		t.Fatalf("state changed by failed commands: value=%d", got)
	}
}

func TestInvalidNextStateIsNotPersisted(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := newHandle()
	ctx := context.Background()
	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "add", By: 3}).WithInit(counterInit{Label: "v"})), h); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "blank"})), h)
	de := dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != RejectInternal {
		t.Fatalf("unexpected rejection: %+v", de.Rejection)
	}

	out, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h)
	if err != nil {
		t.Fatalf("object unreadable after invalid state: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 3 {
		t.Fatalf("value=%d want 3", got)
	}
}

func TestInvalidConstructedStateWritesNothing(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	backend := memory.New()
	ns := storage.Namespace("counter", "nolabel")

	_, err := d.Handle(context.Background(), "nolabel", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Start: 1})), backend.Handle(ns))
	de := dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != RejectInternal {
		t.Fatalf("unexpected rejection: %+v", de.Rejection)
	}
	if n := backend.Len(ns); n != 0 {
		t.Fatalf("invalid construct wrote %d records", n)
	}
}

func TestInitOnExistingObjectReinitializes(t *testing.T) {
	testlog.Start(t)
	kind := &counterKind{}
	obs := &countingObserver{counts: map[Status]int{}}
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](kind, codec.JSON{}, WithObserver(obs))
	h := newHandle()
	ctx := context.Background()

	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "add", By: 5}).WithInit(counterInit{Start: 1, Label: "old"})), h); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "add", By: 1})), h); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	out, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Start: 10, Label: "new"})), h)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 10 {
		t.Fatalf("value=%d want 10", got)
	}
	if obs.counts[StatusInitialized] != 2 || obs.counts[StatusLoaded] != 1 {
		t.Fatalf("unexpected counts: %v", obs.counts)
	}
	if last := kind.seen[len(kind.seen)-1]; last != (counterState{Value: 10, Label: "new"}) {
		t.Fatalf("handler saw %+v, want fresh init state", last)
	}

	raw, ok, err := h.Get(ctx, StateKey)
	if err != nil || !ok {
		t.Fatalf("state missing ok=%v err=%v", ok, err)
	}
	var stored counterState
	if err := (codec.JSON{}).Unmarshal(raw, &stored); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if stored != (counterState{Value: 10, Label: "new"}) {
		t.Fatalf("persisted %+v, want reinitialized state", stored)
	}
}

func TestConstructFailureWritesNothing(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	backend := memory.New()
	ns := storage.Namespace("counter", "neg")

	_, err := d.Handle(context.Background(), "neg", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Start: -1, Label: "n"})), backend.Handle(ns))
	de := dispatchErr(t, err, ErrHandler)
	if de.Rejection == nil || de.Rejection.Code != "negative_start" {
		t.Fatalf("unexpected rejection: %+v", de.Rejection)
	}
	if n := backend.Len(ns); n != 0 {
		t.Fatalf("construct failure wrote %d records", n)
	}
}

func TestCorruptStorage(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	ctx := context.Background()
	get := encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}))

	for name, record := range map[string][]byte{
		"malformed": []byte("{not json"),
		"invalid":   []byte(`{"value":3,"label":""}`),
	} {
		h := newHandle()
		if err := h.Put(ctx, StateKey, record); err != nil {
			t.Fatalf("seed: %v", err)
		}
		_, err := d.Handle(ctx, "k1", get, h)
		dispatchErr(t, err, ErrStorageCorrupt)
		if !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected lifecycle corrupt cause, got %v", name, err)
		}
	}
}

func TestDecodeFailureIsDispatchError(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	_, err := d.Handle(context.Background(), "k1", rawRequest(t, tlv.Bytes(schema.FieldCommand, []byte("nope"))), newHandle())
	de := dispatchErr(t, err, ErrDecode)
	if de.Segment != SegmentCommand {
		t.Fatalf("segment=%q want command", de.Segment)
	}
}

func TestStorageUnavailable(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := &flakyHandle{Handle: newHandle(), getErr: errors.New("io timeout")}
	_, err := d.Handle(context.Background(), "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"})), h)
	de := dispatchErr(t, err, ErrStorageUnavailable)
	if !de.Retryable() {
		t.Fatalf("storage unavailable should be retryable")
	}

	h = &flakyHandle{Handle: newHandle(), failPuts: 1}
	_, err = d.Handle(context.Background(), "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Label: "x"})), h)
	dispatchErr(t, err, ErrStorageUnavailable)
}

func TestPersistFailureAndRetry(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	seed := func(t *testing.T, h storage.Handle) {
		t.Helper()
		if err := h.Put(ctx, StateKey, []byte(`{"value":1,"label":"p"}`)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	add := func(t *testing.T, c codec.Codec) []byte {
		return encode(t, c, NewEnvelope[counterInit](counterCmd{Type: "add", By: 1}))
	}

	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := &flakyHandle{Handle: newHandle(), failPuts: 1}
	seed(t, h.Handle)
	_, err := d.Handle(ctx, "k1", add(t, d.Codec()), h)
	dispatchErr(t, err, ErrPersistFailed)
	if h.puts != 1 {
		t.Fatalf("default policy should not retry, puts=%d", h.puts)
	}

	var slept []time.Duration
	policy := RetryPolicy{
		Attempts: 2,
		Backoff:  BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2},
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	d = NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{}, WithPersistRetry(policy))
	h = &flakyHandle{Handle: newHandle(), failPuts: 2}
	seed(t, h.Handle)
	out, err := d.Handle(ctx, "k1", add(t, d.Codec()), h)
	if err != nil {
		t.Fatalf("retried persist: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 2 {
		t.Fatalf("value=%d want 2", got)
	}
	if h.puts != 3 || len(slept) != 2 || slept[0] != time.Millisecond || slept[1] != 2*time.Millisecond {
		t.Fatalf("unexpected retry trace puts=%d slept=%v", h.puts, slept)
	}

	h = &flakyHandle{Handle: newHandle(), failPuts: 5}
	seed(t, h.Handle)
	_, err = d.Handle(ctx, "k1", add(t, d.Codec()), h)
	dispatchErr(t, err, ErrPersistFailed)
	if h.puts != 3 {
		t.Fatalf("expected 3 attempts, got %d", h.puts)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryPolicy{Attempts: 5, Backoff: BackoffConfig{InitialDelay: time.Hour}}.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single failing call, calls=%d err=%v", calls, err)
	}
}

func TestNextBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := NextBackoffDelay(cfg, i+1, nil); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestAlarm(t *testing.T) {
	testlog.Start(t)
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{})
	h := newHandle()
	ctx := context.Background()

	_, err := d.Alarm(ctx, "k1", h)
	dispatchErr(t, err, ErrUninitialized)

	if _, err := d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Start: 3, Label: "a"})), h); err != nil {
		t.Fatalf("init: %v", err)
	}
	out, err := d.Alarm(ctx, "k1", h)
	if err != nil {
		t.Fatalf("alarm: %v", err)
	}
	if got := decodeResp(t, d.Codec(), out).Value; got != 6 {
		t.Fatalf("alarm value=%d want 6", got)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[Status]int
}

func (o *countingObserver) ObserveLifecycle(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[s]++
}

func TestObserverSeesOutcomes(t *testing.T) {
	testlog.Start(t)
	obs := &countingObserver{counts: map[Status]int{}}
	d := NewDispatcher[counterInit, counterCmd, counterResp, counterState](&counterKind{}, codec.JSON{}, WithObserver(obs))
	h := newHandle()
	ctx := context.Background()
	get := encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}))

	_, _ = d.Handle(ctx, "k1", get, h)
	_, _ = d.Handle(ctx, "k1", encode(t, d.Codec(), NewEnvelope[counterInit](counterCmd{Type: "get"}).WithInit(counterInit{Label: "o"})), h)
	_, _ = d.Handle(ctx, "k1", get, h)
	if obs.counts[StatusMissing] != 1 || obs.counts[StatusInitialized] != 1 || obs.counts[StatusLoaded] != 1 {
		t.Fatalf("unexpected counts: %v", obs.counts)
	}
}

func TestIDs(t *testing.T) {
	a := IDFromName("person", "bob@buzz.com")
	if a != IDFromName("person", "bob@buzz.com") {
		t.Fatalf("name ids not stable")
	}
	if a == IDFromName("inserter", "bob@buzz.com") {
		t.Fatalf("name ids collide across bindings")
	}
	if len(a) != 32 || UniqueID() == UniqueID() {
		t.Fatalf("unexpected id shape")
	}
	got, err := ParseID(a)
	if err != nil || got != a {
		t.Fatalf("parse id: %q %v", got, err)
	}
	if _, err := ParseID("zz"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}
