// Package esp drives an AT-command WiFi modem in soft-AP mode: access point
// configuration, multiplexed TCP server links, a UDP listener and the IPD
// framing of inbound data.
//
// Nothing in this package is safe for concurrent use. One control loop owns
// the transport and runs one operation to completion before the next.
package esp

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const (
	// NoLink is the link id of a receive cycle that produced nothing.
	NoLink = -1

	// MaxLink is the highest link id the modem hands out in multiplexed mode.
	MaxLink = 4

	commandTimeout = 5 * time.Second
	commandRetries = 1
)

var (
	ErrInvalidConfig   = errors.New("invalid access point config")
	ErrMalformedMarker = errors.New("malformed ipd marker")
	ErrPromptTimeout   = errors.New("data prompt not received")
	ErrSendFailed      = errors.New("send failed")
	ErrSendTimeout     = errors.New("send status not received")
)

// Transport is the serial command link to the modem.
type Transport interface {
	// Command issues one AT command and waits for its completion token.
	Command(cmd string, timeout time.Duration, retries int) ([]byte, error)

	// Buffered returns the number of bytes that can be read without waiting.
	Buffered() int

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// ResetInput drops every byte received but not read yet.
	ResetInput() error

	// SetFlow resumes (true) or pauses (false) the sender.
	SetFlow(resume bool)
}

type AccessPoint struct {
	t   Transport
	clk clock.Clock

	udpLink    int
	listenPort int // 0 when not listening

	frame frame
}

type Option func(*AccessPoint)

// WithUDPLink sets the link id reserved for the UDP listener.
func WithUDPLink(link int) Option {
	return func(ap *AccessPoint) {
		ap.udpLink = link
	}
}

// New returns an AccessPoint driving t. A nil clk means the wall clock.
func New(t Transport, clk clock.Clock, opts ...Option) *AccessPoint {
	if clk == nil {
		clk = clock.New()
	}

	ap := &AccessPoint{
		t:       t,
		clk:     clk,
		udpLink: MaxLink,
	}

	for _, opt := range opts {
		opt(ap)
	}

	ap.frame.reset()

	return ap
}

// UDPLink returns the link id of the UDP listener.
func (ap *AccessPoint) UDPLink() int {
	return ap.udpLink
}
