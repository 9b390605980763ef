// Package reachy drives a Reachy Mini head over its websocket control
// endpoint.
package reachy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chelleboyer/reachy-recognizer/core/behaviors"
)

// Option configures a Reachy client.
type Option func(*Client)

// WithHandshakeTimeout bounds the websocket dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialer.HandshakeTimeout = d }
}

// WithWriteTimeout bounds each pose command write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

type poseCommand struct {
	Type  string  `json:"type"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// Client is a behaviors.Actuator backed by a websocket connection to the
// robot. Writes are serialized; the connection is not re-established
// after a failure, letting the executor degrade to simulated mode.
type Client struct {
	dialer       websocket.Dialer
	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ behaviors.Actuator = (*Client)(nil)

// Connect dials the robot's control endpoint, e.g. "ws://reachy.local:8765".
func Connect(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid reachy endpoint: %w", err)
	}

	c := &Client{
		dialer:       websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		writeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reachy at %s: %w", endpoint, err)
	}
	c.conn = conn
	return c, nil
}

// SetTarget sends a head pose command to the robot.
func (c *Client) SetTarget(ctx context.Context, pose behaviors.Pose) error {
	payload, err := json.Marshal(poseCommand{
		Type: "head_pose",
		Roll: pose.Roll, Pitch: pose.Pitch, Yaw: pose.Yaw,
		X: pose.X, Y: pose.Y, Z: pose.Z,
	})
	if err != nil {
		return fmt.Errorf("failed to encode pose command: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("reachy connection closed")
	}

	deadline := time.Now().Add(c.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send pose command: %w", err)
	}
	return nil
}

// Close shuts down the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if closeErr := c.conn.Close(); err == nil {
		err = closeErr
	}
	c.conn = nil
	return err
}
