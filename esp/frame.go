package esp

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/model"
)

const (
	markerPrefix = "+IPD,"

	// markerWindow bounds the marker scan; longer runs are transport noise.
	markerWindow = 20

	// MaxPayload is the largest IPD body the modem delivers in one frame.
	MaxPayload = 2920
)

type frameState uint8

const (
	stateSeeking frameState = iota // scanning for "+IPD,<link>,<len>:"
	stateReading                   // accumulating <len> payload bytes
)

// frame reassembles one IPD message from the byte stream.
type frame struct {
	state  frameState
	marker []byte
	link   int
	size   int
	body   []byte
}

func (f *frame) reset() {
	f.state = stateSeeking
	f.marker = f.marker[:0]
	f.link = NoLink
	f.size = 0
	f.body = nil
}

// seek feeds one byte to the marker scanner and reports whether a complete
// marker was parsed. A window that stops matching the prefix, meets another
// '+', or grows past markerWindow without a terminator, is dropped.
func (f *frame) seek(b byte) (bool, error) {
	if len(f.marker) == 0 && b != '+' {
		return false, nil
	}

	f.marker = append(f.marker, b)
	n := len(f.marker)

	if n <= len(markerPrefix) {
		if b != markerPrefix[n-1] {
			f.restart(b)
		}
		return false, nil
	}

	if b == ':' {
		err := f.parse(string(f.marker[len(markerPrefix) : n-1]))
		f.marker = f.marker[:0]
		return err == nil, err
	}

	if b == '+' || n > markerWindow {
		f.restart(b)
	}

	return false, nil
}

func (f *frame) restart(b byte) {
	f.marker = f.marker[:0]
	if b == '+' {
		f.marker = append(f.marker, b)
	}
}

// parse reads "<link>,<len>" and moves the frame to stateReading.
func (f *frame) parse(meta string) error {
	fields := strings.Split(meta, ",")
	if len(fields) < 2 {
		return errors.Wrapf(ErrMalformedMarker, "meta [%s]", meta)
	}

	link, err := strconv.Atoi(fields[0])
	if err != nil || link < 0 {
		return errors.Wrapf(ErrMalformedMarker, "link [%s]", fields[0])
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil || size < 0 {
		return errors.Wrapf(ErrMalformedMarker, "length [%s]", fields[1])
	}
	if size > MaxPayload {
		return errors.Wrapf(ErrMalformedMarker, "length %d over %d", size, MaxPayload)
	}

	f.state = stateReading
	f.link = link
	f.size = size
	f.body = make([]byte, 0, size)
	return nil
}

func (f *frame) complete() bool {
	return f.state == stateReading && len(f.body) == f.size
}

// Receive waits for the next IPD message. The timeout restarts whenever bytes
// are available; when it elapses the returned message has Link NoLink and the
// error is nil. The sender is paused while bytes are consumed and resumed while
// the loop is idle.
func (ap *AccessPoint) Receive(timeout time.Duration) (model.Message, error) {
	var (
		f     = &ap.frame
		one   [1]byte
		stamp = ap.clk.Now()
	)

	f.reset()
	defer f.reset()

	for ap.clk.Since(stamp) < timeout {
		available := ap.t.Buffered()
		if available <= 0 {
			ap.t.SetFlow(true)
			continue
		}

		stamp = ap.clk.Now()
		ap.t.SetFlow(false)

		switch f.state {
		case stateSeeking:
			n, err := ap.t.Read(one[:])
			if err != nil {
				return model.Message{Link: NoLink}, errors.Wrap(err, "read marker")
			}
			if n == 0 {
				continue
			}

			found, err := f.seek(one[0])
			if err != nil {
				return model.Message{Link: NoLink}, err
			}
			if found {
				log.Sugar.Debugf("link=%d, receiving %d bytes", f.link, f.size)
			}

		case stateReading:
			l := len(f.body)
			want := f.size - l
			if available < want {
				want = available
			}

			n, err := ap.t.Read(f.body[l : l+want])
			if err != nil {
				return model.Message{Link: NoLink}, errors.Wrapf(err, "read link=%d payload", f.link)
			}
			f.body = f.body[:l+n]
		}

		if f.complete() {
			return model.Message{Link: f.link, Payload: f.body}, nil
		}
	}

	if f.state == stateReading {
		log.Sugar.Warnf("link=%d, receive timeout with %d of %d bytes", f.link, len(f.body), f.size)
	}

	return model.Message{Link: NoLink}, nil
}
