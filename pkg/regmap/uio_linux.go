//go:build linux

package regmap

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// InterruptLine is the completion interrupt of a controller, exposed
// through a UIO device. Wait blocks until the line fires; Enable
// re-arms it (UIO masks the interrupt after delivery).
type InterruptLine struct {
	fd   int
	path string
}

// OpenInterruptLine opens a UIO device, e.g. "/dev/uio0".
func OpenInterruptLine(path string) (*InterruptLine, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, fmt.Errorf("opening interrupt line %s: %w", path, errno)
		}
		return nil, fmt.Errorf("opening interrupt line %s: %w", path, err)
	}
	return &InterruptLine{fd: fd, path: path}, nil
}

// Path returns the UIO device path.
func (l *InterruptLine) Path() string {
	return l.path
}

// Wait blocks until the interrupt fires and returns the cumulative
// event count reported by the kernel.
func (l *InterruptLine) Wait() (uint32, error) {
	var buf [4]byte
	for {
		n, err := unix.Read(l.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("waiting for interrupt on %s: %w", l.path, err)
		}
		if n != 4 {
			return 0, fmt.Errorf("waiting for interrupt on %s: short read (%d bytes)", l.path, n)
		}
		return binary.LittleEndian.Uint32(buf[:]), nil
	}
}

func (l *InterruptLine) control(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := unix.Write(l.fd, buf[:]); err != nil {
		return fmt.Errorf("interrupt control on %s: %w", l.path, err)
	}
	return nil
}

// Enable unmasks (re-arms) the interrupt line.
func (l *InterruptLine) Enable() error {
	return l.control(1)
}

// Disable masks the interrupt line.
func (l *InterruptLine) Disable() error {
	return l.control(0)
}

// Close closes the UIO device.
func (l *InterruptLine) Close() error {
	if l.fd >= 0 {
		err := unix.Close(l.fd)
		l.fd = -1
		if err != nil {
			return fmt.Errorf("closing %s: %w", l.path, err)
		}
	}
	return nil
}
