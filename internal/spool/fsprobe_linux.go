//go:build linux

package spool

import "golang.org/x/sys/unix"

const nfsSuperMagic = 0x6969

// notifySupported reports whether root's filesystem delivers inotify events
// reliably. NFS mounts do not propagate remote changes, so they poll.
func notifySupported(root string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return false
	}
	return st.Type != nfsSuperMagic
}
