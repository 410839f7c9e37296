//go:build !linux && !darwin && !freebsd

package serialport

// snapshot is a no-op where terminal settings are not exposed as termios;
// the backend's own Close is the only teardown.
func snapshot(string) (func() error, error) {
	return func() error { return nil }, nil
}
