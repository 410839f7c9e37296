//go:build linux || darwin || freebsd

package serialport

import (
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

const openFlags = unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK | unix.O_CLOEXEC

// snapshotWith reads the device's current termios and returns a function
// that writes it back, discarding pending input. The device is reopened for
// the restore so the caller may close its own handle first.
func snapshotWith(path string, get, set uint) (func() error, error) {
	fd, err := unix.Open(path, openFlags, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	defer unix.Close(fd)

	saved, err := unix.IoctlGetTermios(fd, get)
	if err != nil {
		return nil, fmt.Errorf("%w: read terminal settings: %w", ErrConfigure, err)
	}

	return func() error {
		fd, err := unix.Open(path, openFlags, 0)
		if err != nil {
			return &fs.PathError{Op: "reopen", Path: path, Err: err}
		}
		defer unix.Close(fd)
		if err := unix.IoctlSetTermios(fd, set, saved); err != nil {
			return fmt.Errorf("restore terminal settings: %w", err)
		}
		return nil
	}, nil
}
