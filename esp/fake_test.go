package esp

import (
	"time"

	"github.com/benbjohnson/clock"
)

// fakeTransport plays scripted modem output against a mock clock. Every idle
// poll advances the clock by tick and releases the next pending chunk.
type fakeTransport struct {
	clk   *clock.Mock
	tick  time.Duration
	chunk int // upper bound reported by Buffered, 0 means everything

	in    []byte
	later [][]byte

	commands  []string
	onCommand func(cmd string) ([]byte, error)
	written   []byte
	onWrite   func(p []byte)
	flow      []bool
	resets    int

	// reads made while the sender was not paused
	unpausedReads int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		clk:  clock.NewMock(),
		tick: 100 * time.Millisecond,
	}
}

func (f *fakeTransport) Command(cmd string, timeout time.Duration, retries int) ([]byte, error) {
	f.commands = append(f.commands, cmd)
	if f.onCommand != nil {
		return f.onCommand(cmd)
	}
	return nil, nil
}

func (f *fakeTransport) Buffered() int {
	if len(f.in) == 0 {
		f.clk.Add(f.tick)
		if len(f.later) > 0 {
			f.in, f.later = f.later[0], f.later[1:]
		}
		return 0
	}

	if f.chunk > 0 && len(f.in) > f.chunk {
		return f.chunk
	}
	return len(f.in)
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	if len(f.flow) == 0 || f.flow[len(f.flow)-1] {
		f.unpausedReads++
	}
	n := copy(p, f.in)
	f.in = f.in[n:]
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	if f.onWrite != nil {
		f.onWrite(p)
	}
	return len(p), nil
}

func (f *fakeTransport) ResetInput() error {
	f.resets++
	f.in = nil
	return nil
}

func (f *fakeTransport) SetFlow(resume bool) {
	f.flow = append(f.flow, resume)
}
