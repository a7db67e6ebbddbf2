// Package presence keeps the agent process alive and visible while a call is
// active outside the foreground: a foreground-work lease the supervisor
// honors, plus an ongoing-call notification the shell renders.
package presence

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pushtalk-agent/internal/signal"
)

// Notification describes the ongoing call shown to the user. Tapping it
// routes back to the in-call UI with the channel id and caller name attached.
type Notification struct {
	ChannelID       string `json:"channel_id"`
	CallerName      string `json:"caller_name"`
	CallerPhoto     string `json:"caller_photo,omitempty"`
	StartedAtMillis int64  `json:"started_at"`
}

// Notifier posts and cancels the user-facing ongoing-call notification.
type Notifier interface {
	Post(ctx context.Context, n Notification) error
	Cancel(ctx context.Context) error
}

// Declarer declares foreground work so the process is not reclaimed while a
// call is active.
type Declarer interface {
	Declare(ctx context.Context) error
	Release(ctx context.Context) error
}

// maxPhotoBytes caps the best-effort caller photo download.
const maxPhotoBytes = 1 << 20

// Keeper drives the Declarer and Notifier as one idempotent unit.
//
// Both transitions are best-effort: a failed declaration or post is logged
// and never blocks the call path.
type Keeper struct {
	declarer Declarer
	notifier Notifier
	photos   *http.Client // nil disables the async photo fetch
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active bool
}

func NewKeeper(declarer Declarer, notifier Notifier, photos *http.Client, log *slog.Logger) *Keeper {
	if log == nil {
		log = slog.Default()
	}
	return &Keeper{
		declarer: declarer,
		notifier: notifier,
		photos:   photos,
		log:      log,
		now:      time.Now,
	}
}

// Start declares foreground work and posts the ongoing-call notification.
// Idempotent: a second Start while active is a no-op.
//
// The caller's photo is fetched asynchronously and never blocks the initial
// post; the notification is re-posted with the photo if the fetch succeeds
// while the call is still active.
func (k *Keeper) Start(ctx context.Context, inv signal.Invite) {
	k.mu.Lock()
	if k.active {
		k.mu.Unlock()
		return
	}
	k.active = true
	k.mu.Unlock()

	if err := k.declarer.Declare(ctx); err != nil {
		k.log.Warn("foreground declaration failed", "err", err)
	}

	n := Notification{
		ChannelID:       inv.ChannelID,
		CallerName:      inv.CallerName,
		StartedAtMillis: k.now().UnixMilli(),
	}
	if err := k.notifier.Post(ctx, n); err != nil {
		k.log.Warn("call notification post failed", "err", err)
	}

	if inv.CallerPhoto != "" && k.photos != nil {
		go k.attachPhoto(n, inv.CallerPhoto)
	}
}

// Stop reverses Start. Idempotent: safe when not active.
func (k *Keeper) Stop(ctx context.Context) {
	k.mu.Lock()
	if !k.active {
		k.mu.Unlock()
		return
	}
	k.active = false
	k.mu.Unlock()

	if err := k.notifier.Cancel(ctx); err != nil {
		k.log.Warn("call notification cancel failed", "err", err)
	}
	if err := k.declarer.Release(ctx); err != nil {
		k.log.Warn("foreground release failed", "err", err)
	}
}

// Active reports whether presence is currently declared.
func (k *Keeper) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// attachPhoto validates the photo URL resolves and re-posts the notification
// with it. Best-effort enhancement, not a correctness requirement.
func (k *Keeper) attachPhoto(n Notification, photoURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return
	}
	resp, err := k.photos.Do(req)
	if err != nil {
		k.log.Debug("caller photo fetch failed", "url", photoURL, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxPhotoBytes)); err != nil {
		return
	}

	k.mu.Lock()
	stillActive := k.active
	k.mu.Unlock()
	if !stillActive {
		return
	}

	n.CallerPhoto = photoURL
	if err := k.notifier.Post(ctx, n); err != nil {
		k.log.Debug("photo notification repost failed", "err", err)
	}
}
