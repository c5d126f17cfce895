// Package uart implements the modem transport over a serial port: AT command
// round trips, polled reads and RTS flow control.
package uart

import (
	"bytes"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/treemana/atportal/log"
)

const (
	// pollTimeout bounds one read attempt, it is the idle granularity of every
	// polling loop above this package.
	pollTimeout = 5 * time.Millisecond

	readChunk = 256
)

var (
	ErrCommandFailed  = errors.New("command failed")
	ErrCommandTimeout = errors.New("command timeout")
)

// Conn is the part of serial.Port the transport needs.
type Conn interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetRTS(rts bool) error
}

type Port struct {
	conn Conn
	clk  clock.Clock

	buf   []byte
	chunk []byte
	flow  int8 // -1 unknown, 0 paused, 1 resumed
}

// Open opens the named serial device at baud, 8N1.
func Open(name string, baud int) (*Port, error) {
	sp, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial [%s]", name)
	}

	if err = sp.SetReadTimeout(pollTimeout); err != nil {
		_ = sp.Close()
		return nil, errors.Wrapf(err, "set read timeout [%s]", name)
	}

	log.Sugar.Infof("serial %s opened, baud=%d", name, baud)
	return NewPort(sp, nil), nil
}

// NewPort wraps conn, whose reads must return (0, nil) when nothing arrived
// within a short timeout. A nil clk means the wall clock.
func NewPort(conn Conn, clk clock.Clock) *Port {
	if clk == nil {
		clk = clock.New()
	}

	return &Port{
		conn:  conn,
		clk:   clk,
		chunk: make([]byte, readChunk),
		flow:  -1,
	}
}

func (p *Port) Close() error {
	return p.conn.Close()
}

// fill performs one bounded read into the internal buffer.
func (p *Port) fill() error {
	n, err := p.conn.Read(p.chunk)
	if n > 0 {
		p.buf = append(p.buf, p.chunk[:n]...)
	}
	return err
}

func (p *Port) Buffered() int {
	if len(p.buf) == 0 {
		if err := p.fill(); err != nil {
			log.Sugar.Warnf("serial read error=[%+v]", err)
		}
	}
	return len(p.buf)
}

func (p *Port) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		if err := p.fill(); err != nil {
			return 0, errors.Wrap(err, "serial read")
		}
	}

	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	n, err := p.conn.Write(b)
	if err != nil {
		return n, errors.Wrap(err, "serial write")
	}
	return n, nil
}

func (p *Port) ResetInput() error {
	p.buf = nil
	return errors.Wrap(p.conn.ResetInputBuffer(), "serial reset input")
}

// SetFlow drives RTS, skipping writes that would not change the line.
func (p *Port) SetFlow(resume bool) {
	var want int8
	if resume {
		want = 1
	}
	if p.flow == want {
		return
	}

	if err := p.conn.SetRTS(resume); err != nil {
		log.Sugar.Warnf("serial set rts=%t error=[%+v]", resume, err)
		return
	}
	p.flow = want
}

// Command sends cmd and waits for its status line. The returned bytes are the
// response without the command echo and the final status; anything after the
// status line (such as the '>' send prompt) stays buffered.
func (p *Port) Command(cmd string, timeout time.Duration, retries int) ([]byte, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		var resp []byte
		if resp, err = p.command(cmd, timeout); err == nil {
			return resp, nil
		}
		log.Sugar.Debugf("command [%s] attempt %d error=[%+v]", cmd, attempt, err)
	}
	return nil, err
}

func (p *Port) command(cmd string, timeout time.Duration) ([]byte, error) {
	if err := p.ResetInput(); err != nil {
		return nil, err
	}

	if _, err := p.Write([]byte(cmd + "\r\n")); err != nil {
		return nil, err
	}

	var response []byte
	stamp := p.clk.Now()
	for p.clk.Since(stamp) < timeout {
		if p.Buffered() == 0 {
			continue
		}

		response = append(response, p.buf...)
		p.buf = nil

		body, rest, status := splitStatus(response)
		switch status {
		case statusOK:
			p.buf = rest
			return trimEcho(body, cmd), nil
		case statusError:
			p.buf = rest
			return nil, errors.Wrapf(ErrCommandFailed, "[%s] response [%q]", cmd, response)
		}
	}

	return nil, errors.Wrapf(ErrCommandTimeout, "[%s] after %s, response [%q]", cmd, timeout, response)
}

type status uint8

const (
	statusPending status = iota
	statusOK
	statusError
)

// splitStatus finds the first complete status line in response.
func splitStatus(response []byte) (body, rest []byte, s status) {
	for start := 0; ; {
		idx := bytes.Index(response[start:], []byte("\r\n"))
		if idx < 0 {
			return nil, nil, statusPending
		}

		end := start + idx + 2
		switch string(bytes.TrimSpace(response[start : start+idx])) {
		case "OK":
			return response[:start], response[end:], statusOK
		case "ERROR", "FAIL":
			return response[:start], response[end:], statusError
		}
		start = end
	}
}

// trimEcho drops the echoed command line and surrounding blank lines.
func trimEcho(body []byte, cmd string) []byte {
	if bytes.HasPrefix(body, []byte(cmd)) {
		if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
			body = body[idx+1:]
		} else {
			body = nil
		}
	}
	return bytes.Trim(body, "\r\n")
}
