//go:build !darwin && !linux

package drivers

import "errors"

// OpenFileLimit is unsupported outside darwin/linux; callers treat a
// non-nil error as "skip the check".
func OpenFileLimit() (uint64, error) {
	return 0, errors.New("drivers: open file limit check not supported on this platform")
}
