// Package seq connects to the host MIDI bus as a client with one virtual
// output port (events coming from the serial device) and one virtual input
// port (events other clients want sent to the device).
package seq

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/ttymidi/internal/event"
)

// ErrBusConnection is returned when the client or its ports cannot be created.
var ErrBusConnection = errors.New("cannot connect to MIDI bus")

// DefaultQueueSize bounds the number of inbound events waiting for Receive.
const DefaultQueueSize = 1024

// Conn is a duplex bus client.
//
// Inbound messages are delivered by the driver on its own goroutine and
// queued; Poll and Receive consume the queue from a single pump. Emit may be
// called concurrently with both.
type Conn struct {
	log    *slog.Logger
	drv    *rtmididrv.Driver
	in     drivers.In
	out    drivers.Out
	send   func(gomidi.Message) error
	stopFn func()

	pending chan event.Event
	ready   chan struct{}

	closeOnce sync.Once
}

// Open creates the client ports "<name> MIDI out" and "<name> MIDI in".
func Open(name string, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("%w: rtmididrv: %w", ErrBusConnection, err)
	}

	c := &Conn{
		log:     log,
		drv:     drv,
		pending: make(chan event.Event, DefaultQueueSize),
		ready:   make(chan struct{}, 1),
	}

	c.out, err = drv.OpenVirtualOut(name + " MIDI out")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: create output port: %w", ErrBusConnection, err)
	}
	c.send, err = gomidi.SendTo(c.out)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: output port: %w", ErrBusConnection, err)
	}

	c.in, err = drv.OpenVirtualIn(name + " MIDI in")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: create input port: %w", ErrBusConnection, err)
	}
	c.stopFn, err = gomidi.ListenTo(c.in, func(msg gomidi.Message, _ int32) {
		c.enqueue(msg)
	}, gomidi.HandleError(func(listenErr error) {
		c.log.Warn("midi: listener error", "err", listenErr)
	}))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: listen on input port: %w", ErrBusConnection, err)
	}

	log.Info("midi: client ready", "name", name, "out", c.out.String(), "in", c.in.String())
	return c, nil
}

func (c *Conn) enqueue(msg gomidi.Message) {
	ev, ok := event.FromMessage(msg)
	if !ok {
		c.log.Debug("midi: unhandled message", "msg", msg.String())
		return
	}
	select {
	case c.pending <- ev:
	default:
		c.log.Warn("midi: input queue full, dropping event", "event", ev.String())
		return
	}
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Poll waits up to timeout for inbound events and reports whether any are
// pending.
func (c *Conn) Poll(timeout time.Duration) bool {
	if len(c.pending) > 0 {
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.ready:
	case <-t.C:
	}
	return len(c.pending) > 0
}

// Receive returns the oldest pending event without blocking.
func (c *Conn) Receive() (event.Event, bool) {
	select {
	case ev := <-c.pending:
		return ev, true
	default:
		return nil, false
	}
}

// Emit sends ev on the output port to every subscriber.
func (c *Conn) Emit(ev event.Event) error {
	msg, err := event.ToMessage(ev)
	if err != nil {
		return err
	}
	return c.send(msg)
}

// Close stops listening and releases the ports and the driver. Only the
// first call does anything.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.stopFn != nil {
			c.stopFn()
		}
		if c.in != nil {
			err = errors.Join(err, c.in.Close())
		}
		if c.out != nil {
			err = errors.Join(err, c.out.Close())
		}
		c.drv.Close()
		c.log.Info("midi: client closed")
	})
	return err
}
