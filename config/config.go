// Package config loads settings from local_override.properties, .env and
// the environment. Keys are dotted, as in log.dir.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iidesho/bragi"
	"github.com/iidesho/bragi/sbragi"
	"github.com/joho/godotenv"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

var Files = []string{"local_override.properties", ".env"}

// Load reads the config files into the environment. Files that are
// missing are skipped and values already in the environment win, so
// local_override.properties takes precedence over .env.
func Load() {
	for _, f := range Files {
		err := godotenv.Load(f)
		log.WithoutEscalation().WithError(err).Debug("loading config file", "file", f)
	}
}

func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	v := String(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config %s: %w", key, err)
	}
	return d, nil
}

// Size reads a byte count, optionally suffixed with KiB or MiB.
func Size(key string, def int) (int, error) {
	v := String(key, "")
	if v == "" {
		return def, nil
	}
	mult := 1
	switch {
	case strings.HasSuffix(v, "KiB"):
		mult, v = 1<<10, strings.TrimSuffix(v, "KiB")
	case strings.HasSuffix(v, "MiB"):
		mult, v = 1<<20, strings.TrimSuffix(v, "MiB")
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return def, fmt.Errorf("config %s: invalid size %q", key, String(key, ""))
	}
	return n * mult, nil
}

func Uint16(key string, def uint16) (uint16, error) {
	v := String(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return def, fmt.Errorf("config %s: %w", key, err)
	}
	return uint16(n), nil
}

// Level maps trace, debug, info, warning and error to a log level.
func Level(name string) (slog.Leveler, error) {
	switch strings.ToLower(name) {
	case "trace":
		return sbragi.LevelTrace, nil
	case "debug":
		return sbragi.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unknown log level %q", name)
	}
}

// SetupLogging installs the default logger. With log.dir set it logs to
// rotating files in that folder, otherwise to stderr at log.level.
func SetupLogging(name string) error {
	logDir := String("log.dir", "")
	if logDir != "" {
		bragi.SetPrefix(name)
		handler, err := sbragi.NewHandlerInFolder(logDir)
		if err != nil {
			return fmt.Errorf("log dir %s: %w", logDir, err)
		}
		handler.MakeDefault()
		l, err := sbragi.NewLogger(&handler)
		if err != nil {
			return err
		}
		l.SetDefault()
		return nil
	}
	lvl, err := Level(String("log.level", "info"))
	if err != nil {
		return err
	}
	l, err := sbragi.NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: sbragi.ReplaceAttr,
	}))
	if err != nil {
		return err
	}
	l.SetDefault()
	return nil
}
