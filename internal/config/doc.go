// Package config provides configuration parsing for reactor tooling.
//
// The configuration is stored in reactor.json (or reactor.yaml) at the
// project root. This package handles loading, saving, and validating it,
// and turns it into runtime options and loggers.
//
// # Configuration File Structure
//
//	{
//	  "runtime": {
//	    "recursionLimit": 100,
//	    "maxFlushPasses": 0,
//	    "onExceeded": "drop",
//	    "debug": false,
//	    "queueSize": 256
//	  },
//	  "log": {"level": "info", "format": "text"},
//	  "metrics": {"enabled": true, "namespace": "reactor"},
//	  "tracing": {"enabled": false},
//	  "devtools": {"addr": "localhost:7070", "bufferSize": 1024},
//	  "report": {"dir": "reports", "s3Bucket": "", "region": ""}
//	}
//
// REACTOR_LOG_LEVEL, REACTOR_LOG_FORMAT, REACTOR_RECURSION_LIMIT,
// REACTOR_DEVTOOLS_ADDR and REACTOR_REPORT_BUCKET override file values.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt := reactive.New(cfg.RuntimeOptions(cfg.Logger(os.Stderr))...)
package config
