package singleinstance

// Single-instance ownership over loopback TCP: the resident process binds a
// well-known port and answers PING and SELECT requests. A second launch
// detects the resident and delegates "start a new region selection" to it
// instead of registering a second hotkey hook.

import (
	"context"
)

// Server owns the TCP endpoint and surfaces SELECT requests.
type Server interface {
	// Start binds the start port of the configured range; if it is already
	// occupied another resident exists and Start fails.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted SELECT request, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client request awaiting acknowledgement.
type Conn interface {
	// Ack confirms the selection was triggered.
	Ack() error
	// Nack reports a human-readable reason the request was refused.
	Nack(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Client delegates a selection trigger to a resident server.
type Client interface {
	// TrySelect scans the configured port range for a resident and asks it
	// to open the selection overlay. If no resident is found, returns
	// delegated=false, err=nil.
	TrySelect(ctx context.Context) (delegated bool, err error)
}

// NewServer returns the TCP implementation.
func NewServer() Server { return newTCPServer() }

// NewClient returns the TCP implementation.
func NewClient() Client { return newTCPClient() }
