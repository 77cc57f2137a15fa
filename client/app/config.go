package app

import (
	"os"
	"path/filepath"
	"time"

	cmnenv "signoff/server/common/env"
)

type Config struct {
	APIBaseURL   string
	RealtimeURL  string
	StateDir     string
	PollInterval time.Duration
}

func LoadConfig() Config {
	return Config{
		APIBaseURL:   cmnenv.String("SIGNOFF_API_BASE_URL", "http://localhost:8080"),
		RealtimeURL:  cmnenv.String("SIGNOFF_WS_URL", "ws://localhost:8080/ws"),
		StateDir:     cmnenv.String("SIGNOFF_STATE_DIR", defaultStateDir()),
		PollInterval: cmnenv.DurationMillis("SIGNOFF_POLL_INTERVAL_MS", 15*time.Second),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signoff"
	}
	return filepath.Join(home, ".signoff")
}
