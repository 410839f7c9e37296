package serialport

import "golang.org/x/sys/unix"

func snapshot(path string) (func() error, error) {
	return snapshotWith(path, unix.TCGETS, unix.TCSETSF)
}
