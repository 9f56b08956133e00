package module

import (
	"time"

	"skillproof/internal/platform/config"
)

// Options holds configuration settings for the verify module
type Options struct {
	Workers        int
	FlushEvery     int
	Retries        int
	JitterMin      time.Duration
	JitterMax      time.Duration
	CacheSize      int
	UseBrowser     bool
	HTTPTimeout    time.Duration
	BrowserTimeout time.Duration
}

// FromConfig reads configuration settings from the config.Conf
func FromConfig(cfg config.Conf) Options {
	vf := cfg.Prefix("CORE_VERIFY_")
	return Options{
		Workers:        vf.MayInt("WORKERS", 10),
		FlushEvery:     vf.MayInt("FLUSH_EVERY", 50),
		Retries:        vf.MayInt("RETRIES", 2),
		JitterMin:      vf.MayDuration("JITTER_MIN", 100*time.Millisecond),
		JitterMax:      vf.MayDuration("JITTER_MAX", 500*time.Millisecond),
		CacheSize:      vf.MayInt("CACHE_SIZE", 1024),
		UseBrowser:     vf.MayBool("BROWSER", true),
		HTTPTimeout:    vf.MayDuration("HTTP_TIMEOUT", 10*time.Second),
		BrowserTimeout: vf.MayDuration("BROWSER_TIMEOUT", 30*time.Second),
	}
}
