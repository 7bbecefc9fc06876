//go:build linux

package msr

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

type fileDevice struct {
	fd   int
	path string
}

// OpenDevice opens the msr device of core. Reading requires the msr kernel
// module and CAP_SYS_RAWIO.
func OpenDevice(core int) (Device, error) {
	path := fmt.Sprintf("/dev/cpu/%d/msr", core)
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &fileDevice{fd: fd, path: path}, nil
}

func (d *fileDevice) Read(offset int64) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(d.fd, buf[:], offset)
	if err != nil {
		return 0, fmt.Errorf("pread %s@%#x: %w", d.path, offset, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("pread %s@%#x: short read of %d bytes", d.path, offset, n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (d *fileDevice) Close() error {
	return unix.Close(d.fd)
}
