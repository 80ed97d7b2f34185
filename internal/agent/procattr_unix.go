//go:build unix

package agent

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// detachedAs starts the child in a new session running as uid/gid.
// The runtime drops groups, then gid, then uid between fork and exec.
// When the target is the supervisor's own identity no drop is requested.
func detachedAs(uid, gid int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setsid: true}
	if uid == unix.Getuid() && gid == unix.Getgid() {
		return attr
	}
	attr.Credential = &syscall.Credential{
		Uid:    uint32(uid),
		Gid:    uint32(gid),
		Groups: []uint32{},
	}
	return attr
}
