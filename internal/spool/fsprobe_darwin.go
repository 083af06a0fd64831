//go:build darwin

package spool

import (
	"strings"

	"golang.org/x/sys/unix"
)

// notifySupported reports whether root's filesystem delivers change events
// reliably. Network mounts do not propagate remote changes, so they poll.
func notifySupported(root string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return false
	}
	fsType := strings.ToLower(bytesToString(st.Fstypename[:]))
	return fsType != "nfs" && fsType != "nfs4" && fsType != "smbfs"
}

func bytesToString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
