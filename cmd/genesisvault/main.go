package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/genesisvault/genesisvault/internal/cli"
	"github.com/genesisvault/genesisvault/internal/vault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		// Restore default handling so a second signal kills the process
		<-ctx.Done()
		stop()
	}()

	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr, run)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, opts cli.Options, stderr io.Writer) error {
	return vault.RunWithOptions(ctx, vault.Options{
		Verbose: opts.Verbose,
		Stderr:  stderr,
	})
}
