// Package bridge moves MIDI between a serial port and the host bus in both
// directions.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chase3718/ttymidi/internal/event"
)

// DefaultPollTimeout is how long the bus pump waits for input before
// checking whether it should stop.
const DefaultPollTimeout = 100 * time.Millisecond

var ErrAlreadyStarted = errors.New("bridge already started")

// Port is the serial side. ReadByte and Write are called from different
// goroutines; Close must unblock a pending ReadByte.
type Port interface {
	io.ByteReader
	io.Writer
	io.Closer
}

// Bus is the host side.
type Bus interface {
	Emit(event.Event) error
	// Poll waits up to timeout and reports whether Receive has events.
	Poll(timeout time.Duration) bool
	Receive() (event.Event, bool)
	Close() error
}

type State int32

const (
	Initialized State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	Logger *slog.Logger
	// Output receives comment text and, in PrintOnly mode, the raw byte
	// dump. Defaults to os.Stdout.
	Output io.Writer
	// Quiet suppresses comment output.
	Quiet bool
	// PrintOnly dumps serial bytes as hex instead of decoding them.
	PrintOnly bool
	// PollTimeout defaults to DefaultPollTimeout.
	PollTimeout time.Duration
	// ReadGrace is how long shutdown waits for a serial read in progress
	// before closing the port under it. Defaults to PollTimeout.
	ReadGrace time.Duration
	// MaxComment bounds comment payloads; see wire.WithMaxComment.
	MaxComment int
}

// Bridge is one session between a serial port and a bus connection. It owns
// both and closes them when Run returns.
type Bridge struct {
	port Port
	bus  Bus
	opts Options
	log  *slog.Logger
	out  io.Writer

	state     atomic.Int32
	portClose sync.Once
	busClose  sync.Once
}

func New(port Port, bus Bus, opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.ReadGrace <= 0 {
		opts.ReadGrace = opts.PollTimeout
	}
	return &Bridge{
		port: port,
		bus:  bus,
		opts: opts,
		log:  opts.Logger,
		out:  opts.Output,
	}
}

func (b *Bridge) State() State { return State(b.state.Load()) }

// Run pumps serial->bus and bus->serial until ctx is cancelled or a pump
// fails, then tears the session down. The serial pump only notices
// cancellation between packets; if it is still blocked in a read after
// ReadGrace, the port is closed to release it. Run returns the first pump
// failure, or nil after a cancellation.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(Initialized), int32(Running)) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var serialErr, busErr error
	serialDone := make(chan struct{})
	busDone := make(chan struct{})

	go func() {
		defer close(serialDone)
		defer cancel()
		serialErr = b.serialToBus(ctx)
	}()
	go func() {
		defer close(busDone)
		defer cancel()
		busErr = b.busToSerial(ctx)
	}()
	b.log.Info("bridge: running", "print_only", b.opts.PrintOnly, "poll", b.opts.PollTimeout)

	<-ctx.Done()
	b.state.Store(int32(Stopping))
	b.log.Info("bridge: stopping")

	<-busDone
	select {
	case <-serialDone:
	case <-time.After(b.opts.ReadGrace):
		b.log.Debug("bridge: serial read still pending, closing port")
		b.closePort()
		<-serialDone
	}

	b.closePort()
	b.closeBus()
	b.state.Store(int32(Stopped))
	b.log.Info("bridge: stopped")

	return errors.Join(serialErr, busErr)
}

func (b *Bridge) closePort() {
	b.portClose.Do(func() {
		if err := b.port.Close(); err != nil {
			b.log.Warn("bridge: closing serial port", "err", err)
		}
	})
}

func (b *Bridge) closeBus() {
	b.busClose.Do(func() {
		if err := b.bus.Close(); err != nil {
			b.log.Warn("bridge: closing bus connection", "err", err)
		}
	})
}
