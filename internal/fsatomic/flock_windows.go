//go:build windows

package fsatomic

import (
	"errors"
	"os"
	"time"
)

const lockWait = 5 * time.Second

// flockExclusive emulates the unix advisory lock with an O_EXCL lock file:
// whoever creates it holds the lock, removing it releases. Contenders poll
// until the file disappears or the wait runs out.
func flockExclusive(lockPath string) (func(), error) {
	deadline := time.Now().Add(lockWait)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err == nil {
			released := false
			return func() {
				if released {
					return
				}
				_ = f.Close()
				_ = os.Remove(lockPath)
				released = true
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.New("timed out waiting for " + lockPath)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
