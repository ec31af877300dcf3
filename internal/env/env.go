package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads .env style files into the process environment. Variables that are
// already set win, and missing files are ignored.
func Load(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// lookup parses key with parse, falling back when it is unset or invalid.
func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func GetString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	return lookup(key, fallback, strconv.Atoi)
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	return lookup(key, fallback, time.ParseDuration)
}

// GetBool also accepts sim/nao.
func GetBool(key string, fallback bool) bool {
	return lookup(key, fallback, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "sim", "yes":
			return true, nil
		case "nao", "não", "no":
			return false, nil
		}
		return strconv.ParseBool(s)
	})
}
