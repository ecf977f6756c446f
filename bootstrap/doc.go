// Package bootstrap runs the lifecycle of pushflow services: it validates
// the typed config, initializes logging and telemetry, runs startup hooks,
// waits for a shutdown signal and stops everything in reverse order.
//
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    return err
//	}
//	app.OnStart(func(ctx context.Context) error {
//	    srv.RegisterDefaultEndpoints(app.Name, app.Metrics)
//	    return srv.Start(ctx)
//	})
//	app.OnStop(srv.Stop)
//	return app.Run(ctx)
package bootstrap
