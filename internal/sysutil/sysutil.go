// Package sysutil holds process-level helpers used by the server entrypoint.
package sysutil

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions describes the process logger.
type LogOptions struct {
	Level   string    // zerolog level name; "warning" is accepted, unknown means info
	Pretty  bool      // console output instead of JSON
	Service string    // added as "service" when set
	Version string    // added as "version" when set
	Out     io.Writer // nil means stderr
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetupLogger sets the global level and replaces log.Logger. Durations are
// written in milliseconds so request latencies read the same in every line.
func SetupLogger(o LogOptions) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(o.Level))
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := o.Out
	if w == nil {
		w = os.Stderr
	}
	if o.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	ctx := zerolog.New(w).With().Timestamp()
	if o.Service != "" {
		ctx = ctx.Str("service", o.Service)
	}
	if o.Version != "" {
		ctx = ctx.Str("version", o.Version)
	}
	log.Logger = ctx.Logger()
	return log.Logger
}

// Version picks the reported build version: APP_VERSION, then the linker
// value, then the module version stamped by the Go toolchain.
func Version(linked string) string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	if linked != "" && linked != "dev" {
		return linked
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	if linked == "" {
		return "dev"
	}
	return linked
}
