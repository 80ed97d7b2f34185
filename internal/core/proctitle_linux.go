package core

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// SetProcessTitle renames the calling thread. Called from the main thread it
// changes the name ps and the process table report for the whole process.
// Names longer than 15 bytes are truncated by the kernel.
func SetProcessTitle(title string) error {
	name, err := unix.BytePtrFromString(title)
	if err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(name)), 0, 0, 0)
}
