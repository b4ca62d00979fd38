package relay

import (
	"context"

	"github.com/hubcast/hubcast/proto"
)

// Transport is a single duplex connection to the relay carrying one
// protocol message per frame. Send must be safe for concurrent use; Read is
// called from a single goroutine.
type Transport interface {
	Connect(ctx context.Context, url string, creds Credentials) error
	Send(msg proto.Message) error
	Read() (proto.Message, error)
	Close() error
}

// Credentials identify this bridge to the relay.
type Credentials struct {
	DeviceID   string
	DeviceName string
	Token      string
}

// Dialer builds a fresh Transport for each connection attempt. A new
// session always runs on a new transport object, never a reused one.
type Dialer func() Transport
