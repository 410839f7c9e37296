package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/ttymidi/internal/bridge"
	"github.com/chase3718/ttymidi/internal/event"
)

var errPortClosed = errors.New("port closed")

type fakePort struct {
	in        chan byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu      sync.Mutex
	written []byte
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan byte, 256), closed: make(chan struct{})}
}

func (p *fakePort) feed(b ...byte) {
	for _, c := range b {
		p.in <- c
	}
}

func (p *fakePort) ReadByte() (byte, error) {
	select {
	case c, ok := <-p.in:
		if !ok {
			return 0, io.EOF
		}
		return c, nil
	case <-p.closed:
		return 0, errPortClosed
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

func (p *fakePort) Close() error {
	p.closes.Add(1)
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

type fakeBus struct {
	emitted chan event.Event
	pending chan event.Event
	closes  atomic.Int32
}

func newFakeBus() *fakeBus {
	return &fakeBus{emitted: make(chan event.Event, 64), pending: make(chan event.Event, 64)}
}

func (b *fakeBus) Emit(ev event.Event) error {
	b.emitted <- ev
	return nil
}

func (b *fakeBus) Poll(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for len(b.pending) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return len(b.pending) > 0
}

func (b *fakeBus) Receive() (event.Event, bool) {
	select {
	case ev := <-b.pending:
		return ev, true
	default:
		return nil, false
	}
}

func (b *fakeBus) Close() error {
	b.closes.Add(1)
	return nil
}

func (b *fakeBus) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case ev := <-b.emitted:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
		return nil
	}
}

type session struct {
	port   *fakePort
	bus    *fakeBus
	bridge *bridge.Bridge
	out    *bytes.Buffer
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, opts bridge.Options) *session {
	t.Helper()
	s := &session{port: newFakePort(), bus: newFakeBus(), out: &bytes.Buffer{}, done: make(chan error, 1)}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Output = s.out
	if opts.PollTimeout == 0 {
		opts.PollTimeout = 10 * time.Millisecond
	}
	s.bridge = bridge.New(s.port, s.bus, opts)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- s.bridge.Run(ctx) }()
	require.Eventually(t, func() bool { return s.bridge.State() == bridge.Running }, time.Second, time.Millisecond)
	return s
}

// stop cancels the session and returns Run's result.
func (s *session) stop(t *testing.T) error {
	t.Helper()
	s.cancel()
	return s.wait(t)
}

func (s *session) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func TestSerialToBus(t *testing.T) {
	s := start(t, bridge.Options{})

	s.port.feed(0x90, 0x40, 0x7F)
	assert.Equal(t, event.NoteOn{Channel: 0, Key: 64, Velocity: 127}, s.bus.next(t))

	s.port.feed(0xC0, 0x05, 0x90, 0x40, 0x7F)
	assert.Equal(t, event.ProgramChange{Channel: 0, Program: 5}, s.bus.next(t))
	assert.Equal(t, event.NoteOn{Channel: 0, Key: 64, Velocity: 127}, s.bus.next(t))

	s.port.feed(0xE0, 0x00, 0x40)
	assert.Equal(t, event.PitchBend{Channel: 0, Value: 0}, s.bus.next(t))

	require.NoError(t, s.stop(t))
	assert.Equal(t, bridge.Stopped, s.bridge.State())
	assert.EqualValues(t, 1, s.port.closes.Load())
	assert.EqualValues(t, 1, s.bus.closes.Load())
}

func TestUnknownFramesAreDropped(t *testing.T) {
	s := start(t, bridge.Options{})

	s.port.feed(0xF1, 0x01, 0x02, 0xB2, 0x07, 0x64)
	assert.Equal(t, event.ControlChange{Channel: 2, Controller: 7, Value: 100}, s.bus.next(t))

	require.NoError(t, s.stop(t))
	assert.Empty(t, s.bus.emitted)
}

func TestCommentsGoToOutput(t *testing.T) {
	s := start(t, bridge.Options{})

	s.port.feed(0xFF, 0x00, 0x00, 0x05, 0x48, 0x65, 0x6C, 0x6C, 0x6F, 0x80, 0x3C, 0x00)
	assert.Equal(t, event.NoteOff{Channel: 0, Key: 60, Velocity: 0}, s.bus.next(t))

	require.NoError(t, s.stop(t))
	assert.Equal(t, "0xFF Non-MIDI message: Hello\n", s.out.String())
}

func TestQuietSuppressesComments(t *testing.T) {
	s := start(t, bridge.Options{Quiet: true})

	s.port.feed(0xFF, 0x00, 0x00, 0x02, 'h', 'i', 0x90, 0x01, 0x02)
	assert.Equal(t, event.NoteOn{Channel: 0, Key: 1, Velocity: 2}, s.bus.next(t))

	require.NoError(t, s.stop(t))
	assert.Empty(t, s.out.String())
}

func TestPrintOnlyDumpsBytes(t *testing.T) {
	s := start(t, bridge.Options{PrintOnly: true})

	s.port.feed(0x05, 0x90, 0x40, 0x7F)
	close(s.port.in)

	err := s.wait(t)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "5\t90\t40\t7f\t", s.out.String())
	assert.Empty(t, s.bus.emitted)
}

func TestBusToSerial(t *testing.T) {
	s := start(t, bridge.Options{})

	s.bus.pending <- event.NoteOn{Channel: 1, Key: 60, Velocity: 100}
	s.bus.pending <- event.ProgramChange{Channel: 2, Program: 7}
	s.bus.pending <- event.Unknown{Status: 0xF0}
	s.bus.pending <- event.PitchBend{Channel: 3, Value: 0}
	s.bus.pending <- event.ChannelPressure{Channel: 4, Pressure: 9}

	want := []byte{
		0x91, 60, 100,
		0xC2, 7,
		0xE3, 0x00, 0x40,
		0xD4, 9,
	}
	assert.Eventually(t, func() bool { return bytes.Equal(want, s.port.Written()) }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.stop(t))
}

func TestStopWhileReadBlocked(t *testing.T) {
	s := start(t, bridge.Options{ReadGrace: 20 * time.Millisecond})

	// nothing ever arrives on the wire
	require.NoError(t, s.stop(t))
	assert.Equal(t, bridge.Stopped, s.bridge.State())
	assert.EqualValues(t, 1, s.port.closes.Load())
	assert.EqualValues(t, 1, s.bus.closes.Load())
}

func TestStopAtNextFrame(t *testing.T) {
	s := start(t, bridge.Options{ReadGrace: time.Hour})

	s.cancel()
	require.Eventually(t, func() bool { return s.bridge.State() != bridge.Running }, time.Second, time.Millisecond)

	// the pending read completes with a final frame and the pump exits
	s.port.feed(0x90, 0x40, 0x7F)
	require.NoError(t, s.wait(t))
	assert.EqualValues(t, 1, s.port.closes.Load())
}

func TestSerialFailureEndsSession(t *testing.T) {
	s := start(t, bridge.Options{})

	close(s.port.in)
	err := s.wait(t)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, bridge.Stopped, s.bridge.State())
	assert.EqualValues(t, 1, s.bus.closes.Load())
}

func TestRunOnlyOnce(t *testing.T) {
	s := start(t, bridge.Options{})
	require.NoError(t, s.stop(t))

	err := s.bridge.Run(context.Background())
	assert.ErrorIs(t, err, bridge.ErrAlreadyStarted)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "initialized", bridge.Initialized.String())
	assert.Equal(t, "stopping", bridge.Stopping.String())
	assert.Equal(t, "State(9)", bridge.State(9).String())
}
