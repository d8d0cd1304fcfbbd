package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by the daemon:
//
//	WLED_HOST                 LED controller hostname (default "wled.lan")
//	WLED_UDP_RAW_PORT         raw UDP port (default 19446)
//	AMBILIGHT_DATA_DIR        library root holding .amb files
//	JELLYFIN_BASE_URL         media server base URL (empty disables sync)
//	JELLYFIN_API_KEY          media server API key
//	JELLYFIN_DEVICE_FILTER    restrict session matching to one device
//	PLAYBACK_MONITOR_INTERVAL session poll interval in seconds (default 1.0)

// LoadDotenv reads a .env file and sets environment variables. A missing
// file is not an error; system env and defaults apply. Pass one or more
// paths to load specific files; with no paths, ".env" is used.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid float.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
