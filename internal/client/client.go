// Package client owns the physical connection to the session backend:
// dialing, the frame read loop, liveness probing, the reconnect policy,
// and the demo fallback. It delivers decoded events to the session
// controller and carries its outbound messages.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/traceline/traceline/internal/metrics"
	"github.com/traceline/traceline/internal/protocol"
	"github.com/traceline/traceline/internal/session"
)

const (
	defaultPingInterval = 15 * time.Second
	writeTimeout        = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	URL          string
	PingInterval time.Duration // liveness probe interval (default 15s)
	PongTimeout  time.Duration // missed-probe threshold (default 3x interval)
	Reconnect    bool          // reconnect with backoff after a mid-session drop
	DemoFallback bool          // serve the session locally when the backend is unreachable
}

func (o Options) pingInterval() time.Duration {
	if o.PingInterval > 0 {
		return o.PingInterval
	}
	return defaultPingInterval
}

func (o Options) pongTimeout() time.Duration {
	if o.PongTimeout > 0 {
		return o.PongTimeout
	}
	return 3 * o.pingInterval()
}

// dialFn establishes a transport. Injected in tests.
type dialFn func(ctx context.Context) (Transport, error)

// connectFn runs one full connect-and-serve cycle. Injected in tests.
type connectFn func(ctx context.Context) error

// Client manages the connection to the session backend. It implements
// session.Sender; the controller's outbound messages go through Send.
type Client struct {
	opts Options
	dial dialFn
	demo func() Transport

	mu       sync.Mutex
	tr       Transport
	lastPong time.Time
}

// New creates a client for the given backend URL.
func New(opts Options) *Client {
	c := &Client{opts: opts}
	c.dial = func(ctx context.Context) (Transport, error) {
		return dialWebSocket(ctx, opts.URL)
	}
	return c
}

// SetDemoTransport sets the factory for the fallback transport. The
// cmd layer wires the demo responder here; keeping it a factory avoids
// constructing the responder unless the fallback actually engages.
func (c *Client) SetDemoTransport(fn func() Transport) {
	c.demo = fn
}

// Send implements session.Sender. The mutex is held for the entire
// write to prevent interleaved frames from concurrent senders.
func (c *Client) Send(msg protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tr == nil {
		return fmt.Errorf("not connected")
	}
	data, err := protocol.EncodeOutbound(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.tr.WriteFrame(ctx, data); err != nil {
		return err
	}
	metrics.MessagesSentTotal.WithLabelValues(outboundType(msg)).Inc()
	if pr, ok := msg.(protocol.PermissionResponse); ok {
		metrics.PermissionDecisionsTotal.WithLabelValues(string(pr.Choice)).Inc()
	}
	return nil
}

// Run connects and serves the session until ctx is cancelled. If the
// initial dial fails and the demo fallback is enabled, the session runs
// against the local responder instead of deadlocking the UI; the
// controller signals the difference only through the connected flag.
// After a mid-session drop, Run reconnects with exponential backoff
// when Reconnect is set, otherwise it returns the read error.
func (c *Client) Run(ctx context.Context, ctrl *session.Controller) error {
	tr, err := c.dial(ctx)
	if err != nil {
		if c.opts.DemoFallback && c.demo != nil {
			slog.Warn("backend unreachable, falling back to demo responder", "url", c.opts.URL, "error", err)
			metrics.DemoFallbacksTotal.Inc()
			return c.serve(ctx, ctrl, c.demo(), false)
		}
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	err = c.serve(ctx, ctrl, tr, true)
	if ctx.Err() != nil || !c.opts.Reconnect {
		return err
	}

	connect := func(ctx context.Context) error {
		tr, err := c.dial(ctx)
		if err != nil {
			return err
		}
		return c.serve(ctx, ctrl, tr, true)
	}
	c.runWithReconnect(ctx, connect, newDefaultBackoff(), resetThreshold)
	return nil
}

// serve drives one connection: it resets the controller for the fresh
// transport, runs the ping loop, and pumps frames until the transport
// fails. Every exit funnels through the controller's single
// transport-closed transition.
func (c *Client) serve(ctx context.Context, ctrl *session.Controller, tr Transport, live bool) error {
	c.mu.Lock()
	c.tr = tr
	c.lastPong = time.Now()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.tr = nil
		c.mu.Unlock()
	}()

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	ctrl.HandleConnected(live)

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx, tr)

	err := c.readLoop(ctx, ctrl, tr)
	_ = tr.Close()
	ctrl.HandleDisconnected()
	return err
}

func (c *Client) readLoop(ctx context.Context, ctrl *session.Controller, tr Transport) error {
	for {
		frame, err := tr.ReadFrame(ctx)
		if err != nil {
			return err
		}

		ev, err := protocol.Decode(frame)
		if err != nil {
			// Malformed frames are a non-fatal protocol anomaly.
			slog.Debug("dropping malformed frame", "error", err)
			metrics.DecodeErrorsTotal.Inc()
			continue
		}
		if ev == nil {
			// Unknown event type: ignored for forward compatibility.
			continue
		}

		metrics.EventsReceivedTotal.WithLabelValues(eventType(ev)).Inc()

		if _, ok := ev.(protocol.Pong); ok {
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()
			continue
		}

		ctrl.HandleEvent(ev)
	}
}

// pingLoop probes liveness on a fixed interval, independent of the main
// event path. A missed probe closes the transport so the read loop
// fails and the one disconnect-handling routine runs — there is no
// separate cleanup path.
func (c *Client) pingLoop(ctx context.Context, tr Transport) {
	ticker := time.NewTicker(c.opts.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			silent := time.Since(c.lastPong)
			c.mu.Unlock()

			if silent > c.opts.pongTimeout() {
				slog.Warn("liveness probe missed, closing connection", "silent", silent)
				_ = tr.Close()
				return
			}
			if err := c.Send(protocol.Ping{}); err != nil {
				return
			}
		}
	}
}

// runWithReconnect retries connect with exponential backoff. A
// connection that lasted longer than threshold resets the backoff.
func (c *Client) runWithReconnect(ctx context.Context, connect connectFn, bo backoff.BackOff, threshold time.Duration) {
	var lastErr error
	for {
		interval := bo.NextBackOff()
		slog.Warn("disconnected from backend, reconnecting...", "error", lastErr, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		metrics.ReconnectsTotal.Inc()
		start := time.Now()
		lastErr = connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) >= threshold {
			bo.Reset()
		}
	}
}

func eventType(ev protocol.Event) string {
	switch ev.(type) {
	case protocol.StreamChunk:
		return "stream_chunk"
	case protocol.ToolUse:
		return "tool_use"
	case protocol.ToolResult:
		return "tool_result"
	case protocol.PermissionPrompt:
		return "permission_prompt"
	case protocol.ResponseComplete:
		return "response_complete"
	case protocol.TypingStart:
		return "typing_start"
	case protocol.TypingEnd:
		return "typing_end"
	case protocol.AIResponse:
		return "ai_response"
	case protocol.Pong:
		return "pong"
	default:
		return "unknown"
	}
}

func outboundType(msg protocol.Outbound) string {
	switch msg.(type) {
	case protocol.Command:
		return "command"
	case protocol.PermissionResponse:
		return "permission_response"
	case protocol.Ping:
		return "ping"
	default:
		return "unknown"
	}
}
