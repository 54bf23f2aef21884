// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for log shippers
//   - Development: Colored console output (LOG_DEV=true)
//
// Components receive a named child logger so every line carries the
// subsystem that produced it:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	pool := browser.NewPool(engine, cfg, logger.Component("pool"), metrics)
//	logger.Info("Server starting", zap.String("port", "3000"))
package logging
