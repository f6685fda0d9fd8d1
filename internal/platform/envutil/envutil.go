package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/tourforge-backend/internal/platform/logger"
)

// String returns the trimmed value of name, or def when unset or blank.
func String(name, def string, log *logger.Logger) string {
	v, ok := lookup(name)
	if !ok {
		debug(log, name, "Environment variable not found, using default", "default", def)
		return def
	}
	debug(log, name, "Environment variable found, using environment")
	return v
}

func Int(name string, def int, log *logger.Logger) int {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		debug(log, name, "Environment variable could not be parsed as int, using default", "provided", v, "default", def, "error", err)
		return def
	}
	return i
}

func Bool(name string, def bool, log *logger.Logger) bool {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		debug(log, name, "Environment variable could not be parsed as bool, using default", "provided", v, "default", def)
		return def
	}
}

// Duration accepts Go duration strings ("90s", "15m") or a bare integer
// number of seconds.
func Duration(name string, def time.Duration, log *logger.Logger) time.Duration {
	v, ok := lookup(name)
	if !ok {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		debug(log, name, "Environment variable could not be parsed as duration, using default", "provided", v, "default", def, "error", err)
		return def
	}
	return d
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func debug(log *logger.Logger, name, msg string, kv ...interface{}) {
	if log == nil {
		return
	}
	log.With("env_var", name).Debug(msg, kv...)
}
