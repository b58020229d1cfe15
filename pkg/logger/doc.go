// Package logger provides the structured logging interface used across
// pixivcrawl.
//
// It wraps zerolog behind a small Logger interface so components can take a
// logger as a dependency and tests can swap in NewTestLogger or NewNopLogger.
//
//	cfg := &config.LoggingConfig{Level: "info"}
//	if err := logger.Initialize(cfg); err != nil {
//	    return err
//	}
//
//	log := logger.GetLogger().WithField("component", "crawler")
//	log.InfoWithFields("Page scanned", map[string]interface{}{
//	    "keyword": "landscape",
//	    "page":    3,
//	})
//
// The helpers in this package (LogPageScanned, LogFallback, LogRequest)
// keep field names consistent between the crawler and the downloader.
package logger
