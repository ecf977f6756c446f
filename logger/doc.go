// Package logger provides structured logging for pushflow using zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and a small registry of named loggers. The stream engine logs
// through logger.Get("stream"), so raising that component to debug level
// shows proxy swaps, concat source advances and dropped duplicate signals.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("stream")
//	log.Debug("source advanced", logger.Fields(logger.FieldSourceIndex, 2))
package logger
