//go:build !windows

package fsatomic

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes a blocking exclusive flock on lockPath and returns
// the release func. Release is safe to call more than once.
func flockExclusive(lockPath string) (func(), error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, err
	}
	released := false
	return func() {
		if released {
			return
		}
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		released = true
	}, nil
}
