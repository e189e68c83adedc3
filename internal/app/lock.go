package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AcquireLock takes the single-instance lock file at path. A second instance
// would fight the first one over the global hotkey and the clipboard, so
// startup refuses when the file already exists.
//
// The returned release function removes the file; call it on shutdown. A
// crash leaves the file behind, in which case the error names the stale
// owner so the user can delete it.
func AcquireLock(path string) (release func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			owner := "unknown"
			if data, readErr := os.ReadFile(path); readErr == nil {
				if pid, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil {
					owner = fmt.Sprintf("pid %d", pid)
				}
			}
			return nil, fmt.Errorf(
				"app: another instance appears to be running (%s); delete %s if it crashed", owner, path)
		}
		return nil, fmt.Errorf("app: create lock file: %w", err)
	}

	_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("app: write lock file: %w", err)
	}

	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "could not remove lock file %s: %v\n", path, err)
		}
	}, nil
}
