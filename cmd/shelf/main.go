package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/juanclpzq/digital-library/internal/shelf/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := app.Main(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
