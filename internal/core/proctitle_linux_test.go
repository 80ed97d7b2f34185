package core

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSetProcessTitle(t *testing.T) {
	done := make(chan struct{})
	var comm string
	var setErr error

	// Rename a locked helper thread so the test binary keeps its own name.
	// The thread is discarded when the goroutine exits still locked.
	go func() {
		defer close(done)
		runtime.LockOSThread()

		if setErr = SetProcessTitle(ProcessTitle); setErr != nil {
			return
		}
		data, err := os.ReadFile("/proc/self/task/" + strconv.Itoa(unix.Gettid()) + "/comm")
		if err == nil {
			comm = strings.TrimSpace(string(data))
		}
	}()
	<-done

	require.NoError(t, setErr)
	assert.Equal(t, ProcessTitle, comm)
}
