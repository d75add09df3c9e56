package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/Indexa/internal/app"
	"github.com/markdave123-py/Indexa/internal/cli"
	"github.com/markdave123-py/Indexa/internal/config"
	"github.com/markdave123-py/Indexa/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.Setup = func(ctx context.Context) (*cli.Services, func(), error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		logger, err := logging.New(cfg.LogLevel, "console")
		if err != nil {
			return nil, nil, err
		}
		a, err := app.NewApp(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		svc := &cli.Services{
			Jobs:            a.Jobs,
			Search:          a.Search,
			Schemas:         a.Schemas,
			VectorDimension: cfg.EmbedDim,
		}
		cleanup := func() {
			a.Close()
			_ = logger.Sync()
		}
		return svc, cleanup, nil
	}

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
