//go:build !linux && !darwin

package spool

// notifySupported is conservative on platforms without a filesystem-type
// probe: polling alone is always correct.
func notifySupported(root string) bool {
	return false
}
