//go:build !linux

package core

// SetProcessTitle is a no-op where the thread name cannot be set
func SetProcessTitle(title string) error {
	return nil
}
