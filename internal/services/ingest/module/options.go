package module

import (
	"skillproof/internal/platform/config"
)

// Options holds configuration settings for the ingest module
type Options struct {
	LogEvery int
}

// FromConfig reads configuration settings from the config.Conf
func FromConfig(cfg config.Conf) Options {
	inf := cfg.Prefix("CORE_INGEST_")
	return Options{
		LogEvery: inf.MayInt("LOG_EVERY", 100),
	}
}
