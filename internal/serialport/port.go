// Package serialport opens a serial device for raw MIDI traffic and puts it
// back the way it was found when done.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	BackendNative = "native" // go.bug.st/serial, arbitrary baud where the OS allows it
	BackendPOSIX  = "posix"  // tarm/serial, fixed baud table
)

var (
	ErrNotFound         = errors.New("device not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrBusy             = errors.New("device busy")
	ErrUnsupportedBaud  = errors.New("unsupported baud rate")
	ErrConfigure        = errors.New("cannot configure device")
)

// DeviceError reports a failure to open or configure a serial device.
type DeviceError struct {
	Path string
	Err  error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("serial %s: %v", e.Path, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

// Config describes the device to open.
type Config struct {
	// Device is the serial device path (e.g. "/dev/ttyUSB0").
	Device string
	// BaudRate may be any positive rate the backend can program.
	BaudRate int
	// Backend is BackendNative (default) or BackendPOSIX.
	Backend string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// conn is what a backend hands back once the device is configured for raw
// 8N1, no modem control, blocking reads.
type conn interface {
	io.ReadWriteCloser
	// Drain blocks until everything written has left the output queue.
	Drain() error
}

// Port is an open serial device. One goroutine may read while another writes.
type Port struct {
	device  string
	log     *slog.Logger
	conn    conn
	restore func() error

	rbuf [1]byte
	wmu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Open snapshots the device's terminal settings, then opens and configures it.
// Errors are *DeviceError wrapping one of the package's sentinel errors.
func Open(cfg Config) (*Port, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendNative
	}
	fail := func(err error) (*Port, error) {
		log.Error("serial: failed to open port", "device", cfg.Device, "baud", cfg.BaudRate, "backend", cfg.Backend, "err", err)
		return nil, &DeviceError{Path: cfg.Device, Err: err}
	}

	var open func(Config) (conn, error)
	switch cfg.Backend {
	case BackendNative:
		open = openNative
	case BackendPOSIX:
		open = openPOSIX
	default:
		return fail(fmt.Errorf("%w: unknown backend %q", ErrConfigure, cfg.Backend))
	}
	if cfg.BaudRate <= 0 {
		return fail(fmt.Errorf("%w: %d", ErrUnsupportedBaud, cfg.BaudRate))
	}
	if cfg.Backend == BackendPOSIX && !StandardBaud(cfg.BaudRate) {
		return fail(fmt.Errorf("%w: %d is not in the standard table", ErrUnsupportedBaud, cfg.BaudRate))
	}

	restore, err := snapshot(cfg.Device)
	if err != nil {
		return fail(classify(err))
	}

	c, err := open(cfg)
	if err != nil {
		if rerr := restore(); rerr != nil {
			log.Warn("serial: restore after failed open", "device", cfg.Device, "err", rerr)
		}
		return fail(classify(err))
	}

	log.Info("serial: port opened", "device", cfg.Device, "baud", cfg.BaudRate, "backend", cfg.Backend)
	return &Port{device: cfg.Device, log: log, conn: c, restore: restore}, nil
}

// ReadByte blocks until exactly one byte has been received.
func (p *Port) ReadByte() (byte, error) {
	for {
		n, err := p.conn.Read(p.rbuf[:])
		if n == 1 {
			return p.rbuf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Write sends all of b and waits for the output queue to drain, so bytes
// from successive writes reach the wire in order.
func (p *Port) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	n := 0
	for n < len(b) {
		m, err := p.conn.Write(b[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.ErrShortWrite
		}
	}
	return n, p.conn.Drain()
}

// Close releases the device and restores the terminal settings it had before
// Open. A read blocked in another goroutine returns with an error. Only the
// first call does anything.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.log.Info("serial: closing port", "device", p.device)
		p.closeErr = errors.Join(p.conn.Close(), p.restore())
	})
	return p.closeErr
}
