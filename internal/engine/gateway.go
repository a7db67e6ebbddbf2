package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// GatewayConfig describes the RTC gateway websocket endpoint.
type GatewayConfig struct {
	URL         string
	AppID       string
	DialTimeout time.Duration
	AckTimeout  time.Duration
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 5 * time.Second
	}
	if out.AckTimeout <= 0 {
		out.AckTimeout = 5 * time.Second
	}
	return out
}

// gatewayFrame is the JSON wire frame exchanged with the gateway.
type gatewayFrame struct {
	Op      string `json:"op"`
	AppID   string `json:"app_id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Token   string `json:"token,omitempty"`
	UID     int    `json:"uid,omitempty"`
	Muted   *bool  `json:"muted,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewGatewayFactory returns the normal initialization path: dial the gateway
// and complete the hello handshake (app registration) before the handle is
// considered usable.
func NewGatewayFactory(cfg GatewayConfig) HandleFactory {
	cfg = cfg.withDefaults()
	return func(onEvent func(Event)) (Handle, error) {
		h, err := dialGateway(cfg, onEvent)
		if err != nil {
			return nil, err
		}
		if err := h.command(context.Background(), gatewayFrame{Op: "hello", AppID: cfg.AppID}); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("engine: gateway hello: %w", err)
		}
		return h, nil
	}
}

// NewMinimalGatewayFactory is the last-resort direct-construction path: dial
// with minimal configuration and skip the hello handshake entirely.
func NewMinimalGatewayFactory(cfg GatewayConfig) HandleFactory {
	cfg = cfg.withDefaults()
	return func(onEvent func(Event)) (Handle, error) {
		return dialGateway(cfg, onEvent)
	}
}

func dialGateway(cfg GatewayConfig, onEvent func(Event)) (*gatewayHandle, error) {
	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: gateway dial: %w", err)
	}

	h := &gatewayHandle{
		conn:       conn,
		onEvent:    onEvent,
		ackTimeout: cfg.AckTimeout,
		acks:       make(chan gatewayFrame, 1),
		closed:     make(chan struct{}),
	}
	h.healthy.Store(true)
	go h.readLoop()
	return h, nil
}

// gatewayHandle speaks the gateway's JSON command protocol over a single
// websocket. Commands are serialized: one in-flight ack at a time.
type gatewayHandle struct {
	conn       *websocket.Conn
	onEvent    func(Event)
	ackTimeout time.Duration

	writeMu sync.Mutex
	acks    chan gatewayFrame

	closeOnce sync.Once
	closed    chan struct{}
	healthy   atomic.Bool
}

func (h *gatewayHandle) Join(ctx context.Context, channelID, token string, participantID int) error {
	return h.command(ctx, gatewayFrame{Op: "join", Channel: channelID, Token: token, UID: participantID})
}

func (h *gatewayHandle) Leave() error {
	return h.command(context.Background(), gatewayFrame{Op: "leave"})
}

func (h *gatewayHandle) SetMuted(muted bool) error {
	return h.command(context.Background(), gatewayFrame{Op: "mute", Muted: &muted})
}

func (h *gatewayHandle) Healthy() bool {
	return h.healthy.Load()
}

func (h *gatewayHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.healthy.Store(false)
		close(h.closed)
		err = h.conn.Close()
	})
	return err
}

func (h *gatewayHandle) command(ctx context.Context, f gatewayFrame) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	select {
	case <-h.closed:
		return errors.New("engine: gateway handle closed")
	default:
	}

	// Drain a leftover ack from a command that timed out.
	select {
	case <-h.acks:
	default:
	}

	if err := h.conn.WriteJSON(f); err != nil {
		h.healthy.Store(false)
		return fmt.Errorf("engine: gateway write %s: %w", f.Op, err)
	}

	timer := time.NewTimer(h.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-h.acks:
		if ack.Op == "error" {
			return fmt.Errorf("engine: gateway %s rejected: %s", f.Op, ack.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closed:
		return errors.New("engine: gateway handle closed")
	case <-timer.C:
		return fmt.Errorf("engine: gateway %s ack timeout", f.Op)
	}
}

func (h *gatewayHandle) readLoop() {
	for {
		var f gatewayFrame
		if err := h.conn.ReadJSON(&f); err != nil {
			h.healthy.Store(false)
			h.closeOnce.Do(func() {
				close(h.closed)
				_ = h.conn.Close()
			})
			return
		}

		switch f.Op {
		case "participant-joined":
			if h.onEvent != nil {
				h.onEvent(Event{Kind: ParticipantJoined, ParticipantID: f.UID})
			}
		case "participant-left":
			if h.onEvent != nil {
				h.onEvent(Event{Kind: ParticipantLeft, ParticipantID: f.UID})
			}
		case "ack", "error":
			select {
			case h.acks <- f:
			default:
			}
		}
	}
}
