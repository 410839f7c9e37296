package serialport

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
)

var standardBauds = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}

// StandardBaud reports whether rate is in the fixed table every POSIX
// termios implementation can program.
func StandardBaud(rate int) bool {
	for _, b := range standardBauds {
		if b == rate {
			return true
		}
	}
	return false
}

type nativeConn struct {
	serial.Port
}

func openNative(cfg Config) (conn, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(serial.NoTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfigure, err)
	}
	return nativeConn{p}, nil
}

type posixConn struct {
	*tarm.Port
}

// Drain is a no-op: tarm/serial writes on a blocking descriptor and has no
// tcdrain of its own.
func (posixConn) Drain() error { return nil }

func openPOSIX(cfg Config) (conn, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:     cfg.Device,
		Baud:     cfg.BaudRate,
		Size:     8,
		Parity:   tarm.ParityNone,
		StopBits: tarm.Stop1,
		// zero timeout: VMIN=1, VTIME=0
		ReadTimeout: 0,
	})
	if err != nil {
		return nil, err
	}
	return posixConn{p}, nil
}

// classify maps backend and OS errors onto the package's sentinel errors.
func classify(err error) error {
	for _, known := range []error{ErrNotFound, ErrPermissionDenied, ErrBusy, ErrUnsupportedBaud, ErrConfigure} {
		if errors.Is(err, known) {
			return err
		}
	}

	if code, ok := portErrorCode(err); ok {
		switch code {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case serial.PortBusy:
			return fmt.Errorf("%w: %w", ErrBusy, err)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		case serial.InvalidSpeed:
			return fmt.Errorf("%w: %w", ErrUnsupportedBaud, err)
		}
		return fmt.Errorf("%w: %w", ErrConfigure, err)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return fmt.Errorf("%w: %w", ErrConfigure, err)
}

func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var pp *serial.PortError
	if errors.As(err, &pp) {
		return pp.Code(), true
	}
	var pv serial.PortError
	if errors.As(err, &pv) {
		return pv.Code(), true
	}
	return 0, false
}
