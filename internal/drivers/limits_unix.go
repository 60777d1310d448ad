//go:build darwin || linux

// Package drivers holds small platform-facing startup checks for
// cmd/batchd, adapted from internal/drivers/xattr_unix.go's use of
// golang.org/x/sys/unix.
package drivers

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// OpenFileLimit returns the process's current soft limit on open file
// descriptors.
func OpenFileLimit() (uint64, error) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, fmt.Errorf("drivers: getrlimit: %w", err)
	}
	return rlimit.Cur, nil
}
