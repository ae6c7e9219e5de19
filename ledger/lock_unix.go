//go:build unix

package ledger

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/immoeliza/pricetune/pkg/errors"
)

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 500 * time.Millisecond
)

// acquireLock takes an exclusive flock(2) on path, polling with exponential
// backoff until ctx is done.
func acquireLock(ctx context.Context, path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger lock file")
	}

	backoff := minLockBackoff
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = f.Close()
			return nil, errors.Wrap(err, "flock ledger")
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errors.Mark(errors.Wrapf(ctx.Err(), "waiting for %s", path), errors.ErrLedgerLocked)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxLockBackoff {
			backoff = maxLockBackoff
		}
	}
}

func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
