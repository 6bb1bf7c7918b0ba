//go:build unix

package reslock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile tries to obtain an exclusive advisory lock on the provided file
// handle without blocking. flock locks attach to the open file description,
// so two handles within one process exclude each other the same way two
// processes do.
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// unlockFile releases any advisory lock held on the provided file handle.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
