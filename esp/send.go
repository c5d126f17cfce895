package esp

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/treemana/atportal/log"
)

var (
	sendOK    = []byte("SEND OK\r\n")
	sendFail  = []byte("SEND FAIL\r\n")
	sendError = []byte("ERROR\r\n")
)

// Send writes payload to link through the AT+CIPSEND handshake: request,
// data prompt, raw payload, status. Only "SEND OK" counts as success.
func (ap *AccessPoint) Send(link int, payload []byte, timeout time.Duration) error {
	cmd := fmt.Sprintf("AT+CIPSEND=%d,%d", link, len(payload))
	if _, err := ap.t.Command(cmd, commandTimeout, commandRetries); err != nil {
		return errors.Wrapf(err, "send request link=%d", link)
	}

	if err := ap.waitPrompt(timeout); err != nil {
		return errors.Wrapf(err, "link=%d", link)
	}

	if err := ap.t.ResetInput(); err != nil {
		return errors.Wrapf(err, "reset input link=%d", link)
	}

	if _, err := ap.t.Write(payload); err != nil {
		return errors.Wrapf(err, "write link=%d", link)
	}

	if err := ap.waitStatus(timeout); err != nil {
		return errors.Wrapf(err, "link=%d", link)
	}

	log.Sugar.Debugf("link=%d, sent %d bytes", link, len(payload))
	return nil
}

// waitPrompt consumes bytes until the '>' data prompt. Unlike Receive the
// window does not restart on data.
func (ap *AccessPoint) waitPrompt(timeout time.Duration) error {
	var one [1]byte
	stamp := ap.clk.Now()

	for ap.clk.Since(stamp) < timeout {
		if ap.t.Buffered() <= 0 {
			ap.t.SetFlow(true)
			continue
		}

		ap.t.SetFlow(false)
		n, err := ap.t.Read(one[:])
		if err != nil {
			return errors.Wrap(err, "read prompt")
		}

		if n == 1 && one[0] == '>' {
			return nil
		}
	}

	return ErrPromptTimeout
}

// waitStatus accumulates the modem's answer to a payload write.
func (ap *AccessPoint) waitStatus(timeout time.Duration) error {
	var (
		response []byte
		chunk    = make([]byte, 64)
		stamp    = ap.clk.Now()
	)

	for ap.clk.Since(stamp) < timeout {
		available := ap.t.Buffered()
		if available <= 0 {
			ap.t.SetFlow(true)
			continue
		}

		ap.t.SetFlow(false)
		if available > len(chunk) {
			chunk = make([]byte, available)
		}

		n, err := ap.t.Read(chunk[:available])
		if err != nil {
			return errors.Wrap(err, "read status")
		}
		response = append(response, chunk[:n]...)

		switch {
		case bytes.HasSuffix(response, sendOK):
			return nil
		case bytes.HasSuffix(response, sendFail), bytes.HasSuffix(response, sendError):
			return errors.Wrapf(ErrSendFailed, "response [%q]", response)
		}
	}

	return errors.Wrapf(ErrSendTimeout, "response [%q]", response)
}
