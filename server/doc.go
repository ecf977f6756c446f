// Package server provides the HTTP server pushflow services stream from:
// Gin behind a ServeMux, wrapped in h2c so HTTP/2 clients can multiplex
// many SSE streams over one cleartext connection.
//
//	srv := server.New(cfg.Server, logger.Get("server"))
//	srv.ApplyDefaults(cfg.Name, metrics)
//	srv.GinEngine().GET("/streams/numbers", sse.Handler(numbers, sse.HandlerOptions{}))
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Stop(context.Background())
//
// # Middleware
//
// server/middleware provides recovery, request IDs, request logging, CORS
// and a per-client cap on concurrent streams.
//
// # Endpoints
//
// server/endpoint provides /health, /alive, /ready, /metrics and /version.
package server
