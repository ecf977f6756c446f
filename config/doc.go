// Package config loads and validates the settings of a pushflow process.
//
// LoadConfig reads config.yml with Viper and an optional .env file with
// godotenv, looking in ./cmd/<service> and then the working directory.
// Every key of the target struct is bound to an environment variable named
// after its path, so STREAM_SSE_WINDOW overrides stream.sse_window.
//
// # Usage
//
//	cfg, err := config.Load("streamd")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Init(cfg.Logging)
//
// Validation failures are returned as INVALID_CONFIG errors whose details
// list every offending key.
package config
