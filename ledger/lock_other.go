//go:build !unix

package ledger

import (
	"context"
	"os"

	"github.com/immoeliza/pricetune/pkg/errors"
)

// acquireLock only creates the lock file; appends are serialised by the
// store's mutex within one process.
func acquireLock(ctx context.Context, path string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(err, errors.ErrLedgerLocked)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger lock file")
	}
	return f, nil
}

func releaseLock(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
