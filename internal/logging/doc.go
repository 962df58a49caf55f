// Package logging provides structured JSON logging for prflow.
//
// It wraps log/slog. Every line carries the correlation id of the run it
// belongs to when one is known, so a run can be traced end to end with
// `prflow logs --request <id>`.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithComponent("dashboard").WithRequest(id)
//	runLog.Info("run started", "repo", "acme/app")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"run started","component":"dashboard","request_id":"...","repo":"acme/app"}
//
// # Rotation
//
// NewLoggerWithRotation rotates prflow.log by size, keeping MaxBackups
// numbered backups, optionally gzip compressed.
//
// # Reading Logs Back
//
// AggregateLogs, FilterLogs, WriteText and WriteJSON back the logs command.
//
// The dashboard owns the terminal, so loggers used while it runs must write
// to a file, never to stderr.
package logging
