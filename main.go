package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"go.olrik.dev/sutagent/cmd"
	"go.olrik.dev/sutagent/internal/core"
)

// Keep main on the main thread so the process title lands on the process,
// not on whichever thread main happens to run on.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := core.SetProcessTitle(core.ProcessTitle); err != nil {
		slog.Debug("Failed to set process title", "error", err)
	}
	runtime.UnlockOSThread()

	root := cmd.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
