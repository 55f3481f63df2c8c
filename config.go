package cascade

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the timing knobs of the container.
type Config struct {
	// FastDelay is how long after Start the BackgroundFast stage begins.
	FastDelay time.Duration
	// SlowDelay is how long after the fast stage settles the BackgroundSlow
	// stage begins.
	SlowDelay time.Duration
	// PollInterval drives the WaitForService / WaitForStage readiness polls.
	PollInterval time.Duration
}

// DefaultConfig returns the stock timings: a short breather before the fast
// tier, a longer one before the slow tier.
func DefaultConfig() Config {
	return Config{
		FastDelay:    250 * time.Millisecond,
		SlowDelay:    2 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}
}

// ConfigFromEnv builds a Config from the environment, loading a .env file
// first when one is present. Unset or malformed variables fall back to the
// defaults.
//
//	CASCADE_FAST_DELAY    Go duration, e.g. "100ms"
//	CASCADE_SLOW_DELAY    Go duration, e.g. "5s"
//	CASCADE_POLL_INTERVAL Go duration, e.g. "10ms"
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.FastDelay = envDuration("CASCADE_FAST_DELAY", cfg.FastDelay)
	cfg.SlowDelay = envDuration("CASCADE_SLOW_DELAY", cfg.SlowDelay)
	cfg.PollInterval = envDuration("CASCADE_POLL_INTERVAL", cfg.PollInterval)
	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
