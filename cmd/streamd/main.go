// Command streamd serves demo push streams as Server-Sent Events.
//
// Every stream honours the client's demand window, so a slow browser tab
// never makes the server buffer more than ?window= events for it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/pushflow/bootstrap"
	"github.com/kbukum/pushflow/config"
	"github.com/kbukum/pushflow/logger"
	"github.com/kbukum/pushflow/server"
	"github.com/kbukum/pushflow/version"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "streamd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.LoadConfig("streamd", &cfg); err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = "streamd"
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}
	app.Logger.Info("Build", version.Fields())

	srv := server.New(cfg.Server, logger.Get("server"))

	app.OnStart(func(ctx context.Context) error {
		srv.ApplyDefaults(app.Name, app.Metrics)
		registerStreams(srv.StreamGroup("/streams", app.Metrics), &cfg, app.Metrics, app.Summary)
		return srv.Start(ctx)
	})
	app.OnStop(srv.Stop)

	return app.Run(ctx)
}
