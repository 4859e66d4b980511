package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeGirum/face-recognition/cmd"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// Injected with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := runtime.NewContext(version, buildDate)
	err := cmd.RootCommand(app).ExecuteContext(ctx)
	stop()
	_ = app.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
