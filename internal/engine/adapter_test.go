package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHandle struct {
	joinErrs   []error
	joinCalls  int
	leaveCalls int
	leaveErr   error
	setMuted   []bool
	healthy    bool
	closed     bool
}

func newFakeHandle() *fakeHandle { return &fakeHandle{healthy: true} }

func (h *fakeHandle) Join(_ context.Context, _, _ string, _ int) error {
	h.joinCalls++
	if len(h.joinErrs) > 0 {
		err := h.joinErrs[0]
		h.joinErrs = h.joinErrs[1:]
		return err
	}
	return nil
}

func (h *fakeHandle) Leave() error {
	h.leaveCalls++
	return h.leaveErr
}

func (h *fakeHandle) SetMuted(muted bool) error {
	h.setMuted = append(h.setMuted, muted)
	return nil
}

func (h *fakeHandle) Healthy() bool { return h.healthy && !h.closed }

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

// makeFactory hands out the given handles in order; a nil entry simulates a
// construction failure.
func makeFactory(handles []*fakeHandle, calls *int) HandleFactory {
	return func(onEvent func(Event)) (Handle, error) {
		if *calls >= len(handles) {
			return nil, errors.New("no more handles")
		}
		h := handles[*calls]
		*calls++
		if h == nil {
			return nil, errors.New("construction failed")
		}
		return h, nil
	}
}

func newTestAdapter(primary, fallback HandleFactory) (*Adapter, *[]time.Duration) {
	a := NewAdapter(primary, fallback, nil)
	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }
	return a, &slept
}

func TestAdapter_JoinSucceedsFirstTryAndDefaultsMuted(t *testing.T) {
	h := newFakeHandle()
	calls := 0
	a, slept := newTestAdapter(makeFactory([]*fakeHandle{h}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}
	if h.joinCalls != 1 {
		t.Fatalf("expected one join, got %d", h.joinCalls)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff on clean join")
	}
	if len(h.setMuted) != 1 || !h.setMuted[0] {
		t.Fatalf("expected default mute after join, got %v", h.setMuted)
	}
}

func TestAdapter_JoinReinitializesOnceThenRetries(t *testing.T) {
	first := newFakeHandle()
	first.joinErrs = []error{errors.New("engine warming up")}
	second := newFakeHandle()

	calls := 0
	a, slept := newTestAdapter(makeFactory([]*fakeHandle{first, second}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one reinitialize, factory called %d times", calls)
	}
	if !first.closed {
		t.Fatalf("expected stale handle to be closed")
	}
	if len(*slept) != 1 || (*slept)[0] != 300*time.Millisecond {
		t.Fatalf("expected single 300ms backoff, got %v", *slept)
	}
	if second.joinCalls != 1 {
		t.Fatalf("expected retry on fresh handle, got %d", second.joinCalls)
	}
}

func TestAdapter_JoinFallsBackToDirectConstruction(t *testing.T) {
	first := newFakeHandle()
	first.joinErrs = []error{errors.New("fail")}
	second := newFakeHandle()
	second.joinErrs = []error{errors.New("fail again")}
	direct := newFakeHandle()

	primaryCalls := 0
	fallbackCalls := 0
	a, _ := newTestAdapter(
		makeFactory([]*fakeHandle{first, second}, &primaryCalls),
		makeFactory([]*fakeHandle{direct}, &fallbackCalls),
	)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}
	if fallbackCalls != 1 {
		t.Fatalf("expected exactly one fallback construction, got %d", fallbackCalls)
	}
	if direct.joinCalls != 1 {
		t.Fatalf("expected exactly one final retry, got %d", direct.joinCalls)
	}
}

func TestAdapter_JoinExhaustedIsTerminal(t *testing.T) {
	mk := func() *fakeHandle {
		h := newFakeHandle()
		h.joinErrs = []error{errors.New("fail"), errors.New("fail")}
		return h
	}
	primaryCalls := 0
	fallbackCalls := 0
	a, _ := newTestAdapter(
		makeFactory([]*fakeHandle{mk(), mk()}, &primaryCalls),
		makeFactory([]*fakeHandle{mk()}, &fallbackCalls),
	)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	err := a.Join(context.Background(), "c1", "t1", 5)
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("expected ErrJoinFailed, got %v", err)
	}
	// Bounded: primary initialize + one reinit, one fallback. Nothing more.
	if primaryCalls != 2 || fallbackCalls != 1 {
		t.Fatalf("unexpected construction counts: primary=%d fallback=%d", primaryCalls, fallbackCalls)
	}
}

func TestAdapter_JoinRequiresInitialize(t *testing.T) {
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{newFakeHandle()}, &calls), nil)
	if err := a.Join(context.Background(), "c1", "t1", 5); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestAdapter_InitializeIsIdempotent(t *testing.T) {
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{newFakeHandle(), newFakeHandle()}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected healthy handle to be reused, factory called %d times", calls)
	}
	if !a.IsHealthy() {
		t.Fatalf("expected healthy adapter")
	}
}

func TestAdapter_ReinitializeDoesNotAccrueOwnership(t *testing.T) {
	first := newFakeHandle()
	second := newFakeHandle()
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{first, second}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}

	// The handle dies mid-life; the same owner refreshes it.
	first.healthy = false
	if err := a.Reinitialize(); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if !first.closed {
		t.Fatalf("expected dead handle to be closed on refresh")
	}

	// The owner's single Destroy must still close the handle.
	a.Destroy()
	if !second.closed {
		t.Fatalf("owner count drifted: handle still open after the owner's only Destroy")
	}
}

func TestAdapter_ReinitializeRequiresAnOwner(t *testing.T) {
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{newFakeHandle()}, &calls), nil)
	if err := a.Reinitialize(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("reinitialize without an owner must not construct a handle")
	}
}

func TestAdapter_DestroyRespectsCoOwners(t *testing.T) {
	h := newFakeHandle()
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{h}, &calls), nil)

	// Two co-owners: the session controller and a foreground call UI.
	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	a.Destroy()
	if h.closed {
		t.Fatalf("handle must stay alive while a co-owner remains")
	}
	a.Destroy()
	if !h.closed {
		t.Fatalf("handle must close when the last owner releases it")
	}
}

func TestAdapter_LeaveIsIdempotent(t *testing.T) {
	h := newFakeHandle()
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{h}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Not joined yet: leave is a no-op.
	if err := a.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if h.leaveCalls != 0 {
		t.Fatalf("expected no engine leave when not joined")
	}

	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := a.Leave(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := a.Leave(); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if h.leaveCalls != 1 {
		t.Fatalf("expected one engine leave, got %d", h.leaveCalls)
	}
}

func TestAdapter_MuteTogglesAreIdempotent(t *testing.T) {
	h := newFakeHandle()
	calls := 0
	a, _ := newTestAdapter(makeFactory([]*fakeHandle{h}, &calls), nil)

	if err := a.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Join(context.Background(), "c1", "t1", 5); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Already default-muted; another mute is a no-op.
	if err := a.MuteLocal(); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if err := a.UnmuteLocal(); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if err := a.UnmuteLocal(); err != nil {
		t.Fatalf("second unmute: %v", err)
	}
	// join default-mute + single unmute.
	if len(h.setMuted) != 2 || h.setMuted[1] {
		t.Fatalf("unexpected mute sequence: %v", h.setMuted)
	}
}

func TestAdapter_EventsFanOutToAllSubscribers(t *testing.T) {
	a, _ := newTestAdapter(nil, nil)

	ch1, cancel1 := a.Events()
	defer cancel1()
	ch2, cancel2 := a.Events()
	defer cancel2()

	a.hub.publish(Event{Kind: ParticipantJoined, ParticipantID: 7})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Kind != ParticipantJoined || ev.ParticipantID != 7 {
				t.Fatalf("subscriber %d got unexpected event: %+v", i, ev)
			}
		default:
			t.Fatalf("subscriber %d did not receive the event", i)
		}
	}
}
