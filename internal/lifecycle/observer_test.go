package lifecycle

import (
	"context"
	"testing"
)

type recorder struct{ ops []string }

func (r *recorder) MarkForeground()                { r.ops = append(r.ops, "mark.fg") }
func (r *recorder) MarkBackground()                { r.ops = append(r.ops, "mark.bg") }
func (r *recorder) OnForegrounded(context.Context) { r.ops = append(r.ops, "session.fg") }
func (r *recorder) OnBackgrounded(context.Context) { r.ops = append(r.ops, "session.bg") }

func TestObserver_MarksBeforeNotifyingSession(t *testing.T) {
	r := &recorder{}
	o := NewObserver(r, r, nil)

	o.Foregrounded(context.Background())
	o.Backgrounded(context.Background())

	want := []string{"mark.fg", "session.fg", "mark.bg", "session.bg"}
	if len(r.ops) != len(want) {
		t.Fatalf("unexpected ops: %v", r.ops)
	}
	for i := range want {
		if r.ops[i] != want[i] {
			t.Fatalf("op %d: want %s, got %s (all: %v)", i, want[i], r.ops[i], r.ops)
		}
	}
}
