package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/antiyro/starkroot/bench"
	"github.com/antiyro/starkroot/utils"
	_ "go.uber.org/automaxprocs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newRunner := func(cfg *bench.Config, version string, log utils.Logger) (bench.Benchmark, error) {
		return bench.NewRunner(cfg, version, log)
	}
	if err := NewCmd(newRunner).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
