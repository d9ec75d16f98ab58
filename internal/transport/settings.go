package transport

import (
	"errors"
	"time"
)

// ErrClosed is returned by a Queue or Link after Close.
var ErrClosed = errors.New("transport: closed")

// Settings tunes link timeouts.
type Settings struct {
	HandshakeTimeout time.Duration
	// PingInterval is how long the write side may idle before it sends an
	// empty keepalive frame.
	PingInterval time.Duration
	WriteTimeout time.Duration
	// ReadTimeout must exceed PingInterval or idle links are dropped.
	ReadTimeout time.Duration
	// MaxMessageSize bounds one inbound frame. Zero means no limit.
	MaxMessageSize int64
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     5 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      30 * time.Second,
		MaxMessageSize:   64 << 20,
	}
}
