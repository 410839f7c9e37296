package bridge

import (
	"context"
	"fmt"

	"github.com/chase3718/ttymidi/internal/event"
	"github.com/chase3718/ttymidi/internal/wire"
)

func (b *Bridge) serialToBus(ctx context.Context) error {
	if b.opts.PrintOnly {
		return b.dumpSerial(ctx)
	}

	dec := wire.NewDecoder(b.port, wire.WithMaxComment(b.opts.MaxComment))
	for ctx.Err() == nil {
		p, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}

		switch p := p.(type) {
		case wire.Frame:
			b.forward(p)
		case wire.Comment:
			b.comment(p)
		}
	}
	return nil
}

func (b *Bridge) forward(f wire.Frame) {
	ev := event.FromFrame(f)
	if _, ok := ev.(event.Unknown); ok {
		b.log.Debug("serial: unknown MIDI message dropped", "frame", f.String(), "event", ev.String())
		return
	}

	b.log.Debug("serial -> midi", "frame", f.String(), "event", ev.String())
	if err := b.bus.Emit(ev); err != nil {
		b.log.Warn("midi: emit failed", "event", ev.String(), "err", err)
	}
}

func (b *Bridge) comment(c wire.Comment) {
	if c.Truncated {
		b.log.Warn("serial: comment truncated", "length", c.Length, "kept", len(c.Text))
	}
	if b.opts.Quiet {
		return
	}
	fmt.Fprintf(b.out, "0xFF Non-MIDI message: %s\n", c.Text)
}

// dumpSerial prints every received byte and does nothing else.
func (b *Bridge) dumpSerial(ctx context.Context) error {
	for ctx.Err() == nil {
		c, err := b.port.ReadByte()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}
		fmt.Fprintf(b.out, "%x\t", c)
	}
	return nil
}

func (b *Bridge) busToSerial(ctx context.Context) error {
	for ctx.Err() == nil {
		if !b.bus.Poll(b.opts.PollTimeout) {
			continue
		}
		for {
			ev, ok := b.bus.Receive()
			if !ok {
				break
			}
			f, err := event.ToFrame(ev)
			if err != nil {
				b.log.Debug("midi: event not sent to serial", "event", ev, "err", err)
				continue
			}
			b.log.Debug("midi -> serial", "event", ev.String(), "frame", f.String())
			if _, err := b.port.Write(f.Bytes()); err != nil {
				return fmt.Errorf("serial write: %w", err)
			}
		}
	}
	return nil
}
