// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// The streamer and archiver share one file; each binary reads its own sections.
package config
