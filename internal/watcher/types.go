package watcher

import "time"

// historyCapacity bounds the reload records kept for status display.
const historyCapacity = 16

// ReloadHandler receives each settled batch of changed corpus paths.
type ReloadHandler func(paths []string)

// Reload records one settled batch.
type Reload struct {
	Paths []string
	Time  time.Time
}

// Config holds knowledge watcher configuration.
type Config struct {
	Enabled    bool
	Debounce   time.Duration
	MaxWatches int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		Debounce:   500 * time.Millisecond,
		MaxWatches: 256,
	}
}
