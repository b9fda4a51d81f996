// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON, sampled, errors on stderr and the rest on stdout
//   - Development: colored console output with stack traces from warn up
//
// Components take a *zap.Logger and attach their own fields (import_id,
// stage, session_id) rather than formatting messages. The level is shared
// by every child and can be changed at runtime through LevelHandler, which
// the server mounts at /debug/log-level.
//
// Example Usage:
//
//	logger := logging.NewOrNop(logging.DefaultConfig())
//	log := logger.Component("acquisition")
//	log.Info("Download complete", zap.String("import_id", id))
package logging
