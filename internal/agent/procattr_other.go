//go:build !unix

package agent

import "syscall"

func detachedAs(uid, gid int) *syscall.SysProcAttr {
	return nil
}
