// Package config loads uitrace settings from YAML or JSON.
//
// Config wraps the parsed document with typed lookups that reject values
// of the wrong type; Decode turns it into Settings for the engine and the
// batch sender:
//
//	beaconUrl: https://collector.example.com/beacon
//	flushInterval: 5000        # milliseconds, or "5s"
//	errorLimit: 25
//	minEvents: 25
//	maxLength: 60000
//	encoding: json             # or "query" for GET beacons
//	gzip: true
//	keysToIgnore: [cmpH]
//	headers:
//	  X-Client: web
//
// Files are layered in order, so a local file can override a shared one:
//
//	settings, err := config.LoadSettings("uitrace.yaml", "uitrace.local.json")
//
// UITRACE_* environment variables take precedence over files:
//
//	settings, err = config.ApplyEnv(ctx, settings)
package config
