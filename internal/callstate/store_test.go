package callstate

import (
	"context"
	"testing"
	"time"

	"pushtalk-agent/internal/signal"
)

func testInvite() signal.Invite {
	return signal.Invite{
		Token:           "t1",
		ParticipantID:   5,
		ChannelID:       "c1",
		CallerName:      "Alice",
		TimestampMillis: 1700000000000,
	}
}

func TestMemoryStore_SaveLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(30 * time.Minute)

	base := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return base }

	if err := s.Save(ctx, FromInvite(testInvite(), base.UnixMilli())); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record")
	}
	if !rec.IsActive {
		t.Fatalf("expected is_in_active_call")
	}
	if got := rec.Invite(); got.ChannelID != "c1" || got.ParticipantID != 5 || got.CallerName != "Alice" {
		t.Fatalf("unexpected invite: %+v", got)
	}
}

func TestMemoryStore_StaleRecordDiscardedAndCleared(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(30 * time.Minute)

	staleCount := 0
	s.OnStale = func() { staleCount++ }

	base := time.UnixMilli(1700000000000)
	if err := s.Save(ctx, FromInvite(testInvite(), base.UnixMilli())); err != nil {
		t.Fatalf("save: %v", err)
	}

	// 40 minutes later the record is past the recovery window.
	s.now = func() time.Time { return base.Add(40 * time.Minute) }

	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected stale record to be discarded, got %+v", rec)
	}
	if staleCount != 1 {
		t.Fatalf("expected one stale callback, got %d", staleCount)
	}

	// Idempotence: the second load also returns nothing, without error.
	rec, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected empty store on second load")
	}
	if staleCount != 1 {
		t.Fatalf("stale callback must not fire for an empty slot")
	}
}

func TestMemoryStore_WindowBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(30 * time.Minute)

	base := time.UnixMilli(1700000000000)
	if err := s.Save(ctx, FromInvite(testInvite(), base.UnixMilli())); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Exactly at the window edge the record is still resumable.
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record at window boundary")
	}
}

func TestMemoryStore_SaveOverwritesSingleSlot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(30 * time.Minute)

	base := time.Now()
	first := FromInvite(testInvite(), base.UnixMilli())
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := testInvite()
	second.ChannelID = "c2"
	if err := s.Save(ctx, FromInvite(second, base.UnixMilli())); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec == nil || rec.ChannelID != "c2" {
		t.Fatalf("expected overwritten slot, got %+v", rec)
	}
}

func TestMemoryStore_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(30 * time.Minute)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear on empty: %v", err)
	}
	if err := s.Save(ctx, FromInvite(testInvite(), time.Now().UnixMilli())); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec, err := s.Load(ctx)
	if err != nil || rec != nil {
		t.Fatalf("expected empty store, got %+v err=%v", rec, err)
	}
}
