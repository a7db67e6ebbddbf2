// Package httpapi exposes the agent over HTTP: the push relay webhook that
// feeds the signal classifier, and the authenticated control surface the
// shell uses to inspect and drive the current call.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"pushtalk-agent/internal/session"
	"pushtalk-agent/internal/signal"
	"pushtalk-agent/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallController is the slice of the session controller the handlers need.
type CallController interface {
	OnInvite(ctx context.Context, inv signal.Invite) error
	CurrentState() session.State
	CurrentCall(ctx context.Context) (signal.Invite, bool)
	LeaveManually(ctx context.Context)
	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
}

// LifecycleObserver receives the shell's foreground/background reports.
type LifecycleObserver interface {
	Foregrounded(ctx context.Context)
	Backgrounded(ctx context.Context)
}

// TokenIssuer mints control-surface access tokens.
type TokenIssuer interface {
	IssueAccess(now time.Time, userID, deviceID string) (string, error)
}

// Handlers converts HTTP requests to controller calls and writes JSON.
//
// No business logic here.
type Handlers struct {
	Calls     CallController
	Lifecycle LifecycleObserver

	// Tokens plus the agent's identity back the pairing endpoint.
	Tokens   TokenIssuer
	UserID   string
	DeviceID string
}

// pushEnvelope is the relay's delivery shape: an opaque string data map, plus
// an optional display notification block that marks the message as belonging
// to the general notification path.
type pushEnvelope struct {
	Data         map[string]string `json:"data"`
	Notification *struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
}

// HandlePush classifies an inbound push and routes call invites to the
// session controller. The response is always 2xx for classifiable outcomes so
// the relay never retries a message the agent has already decided on.
func (h Handlers) HandlePush(c *gin.Context) {
	log := logger.FromGin(c)

	var env pushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		log.Warn("push payload parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	hasNotification := env.Notification != nil &&
		(env.Notification.Title != "" || env.Notification.Body != "")

	inv, ok := signal.Classify(env.Data, hasNotification)
	if !ok {
		if signal.IsGeneralNotification(env.Data, hasNotification) {
			// Not ours; the notification path displays it.
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "notification"})
			return
		}
		// Dropped silently: logged, never escalated or retried.
		log.Warn("push payload missing invite fields")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "malformed"})
		return
	}

	// The join escalation outlives the webhook request: a relay that times
	// out and drops the connection must not cancel a delivered invite mid-join.
	err := h.Calls.OnInvite(context.WithoutCancel(c.Request.Context()), inv)
	switch {
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusOK, gin.H{"status": "dropped", "reason": "busy"})
	case err != nil:
		// The invite was accepted but the join did not succeed. The session
		// controller has already decided what survives (presence,
		// persistence); nothing for the relay to retry.
		log.Error("invite join failed", "channel", inv.ChannelID, "err", err)
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "joined": false})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "joined": true})
	}
}

// callView is the control-surface projection of the current call. The token
// is included: the shell needs it to resume the call in-UI.
type callView struct {
	ChannelID       string `json:"channel_id"`
	Token           string `json:"token"`
	ParticipantID   int    `json:"participant_id"`
	CallerName      string `json:"caller_name"`
	CallerPhoto     string `json:"caller_photo,omitempty"`
	TimestampMillis int64  `json:"timestamp"`
}

func (h Handlers) GetCall(c *gin.Context) {
	state := h.Calls.CurrentState()
	inv, ok := h.Calls.CurrentCall(c.Request.Context())
	if !ok {
		c.JSON(http.StatusOK, gin.H{"state": state.String(), "in_call": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":   state.String(),
		"in_call": true,
		"call": callView{
			ChannelID:       inv.ChannelID,
			Token:           inv.Token,
			ParticipantID:   inv.ParticipantID,
			CallerName:      inv.CallerName,
			CallerPhoto:     inv.CallerPhoto,
			TimestampMillis: inv.TimestampMillis,
		},
	})
}

func (h Handlers) Leave(c *gin.Context) {
	h.Calls.LeaveManually(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func (h Handlers) Mute(c *gin.Context) {
	if err := h.Calls.Mute(c.Request.Context()); err != nil {
		logger.FromGin(c).Warn("mute failed", "err", err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "not in a call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "muted"})
}

func (h Handlers) Unmute(c *gin.Context) {
	if err := h.Calls.Unmute(c.Request.Context()); err != nil {
		logger.FromGin(c).Warn("unmute failed", "err", err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "not in a call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unmuted"})
}

// PairToken issues the shell its access token for the /v1 control surface.
// Shell and agent share the device, so pairing is restricted to loopback;
// anything arriving over a real interface is refused.
func (h Handlers) PairToken(c *gin.Context) {
	ip := net.ParseIP(c.ClientIP())
	if ip == nil || !ip.IsLoopback() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "pairing is local-only"})
		return
	}

	tok, err := h.Tokens.IssueAccess(time.Now(), h.UserID, h.DeviceID)
	if err != nil {
		logger.FromGin(c).Error("token issue failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

func (h Handlers) Foreground(c *gin.Context) {
	h.Lifecycle.Foregrounded(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) Background(c *gin.Context) {
	h.Lifecycle.Backgrounded(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
