package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "SFTPWIRE_LOG_LEVEL"
	EnvLogTimestamp = "SFTPWIRE_LOG_TIMESTAMP"
	EnvLogNoColor   = "SFTPWIRE_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global logger once; later calls are no-ops so tests
// and main cannot fight over the sink.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level, timestamp, noColor := defaults(profile)
		applyEnvOverrides(&level, &timestamp, &noColor)

		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}
		ctx := zerolog.New(output).With()
		if timestamp {
			ctx = ctx.Timestamp()
		}
		log.Logger = ctx.Logger()
		zerolog.SetGlobalLevel(level)
	})
}

func defaults(profile Profile) (zerolog.Level, bool, bool) {
	switch profile {
	case ProfileTest:
		return zerolog.DebugLevel, false, true
	default:
		return zerolog.InfoLevel, true, false
	}
}

func applyEnvOverrides(level *zerolog.Level, timestamp, noColor *bool) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		*level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		*timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		*noColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "":
		return zerolog.NoLevel, false
	case "off", "none", "disable":
		return zerolog.Disabled, true
	case "warning":
		return zerolog.WarnLevel, true
	}
	lvl, err := zerolog.ParseLevel(raw)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

func parseBool(raw string) (value, ok bool) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return v, err == nil
}
