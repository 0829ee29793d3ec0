// Package ulogger wraps zerolog the way the teacher's util/logger.go does:
// a small interface every core component depends on, a pretty console
// writer for interactive use and a plain JSON writer for production, with
// the level controlled by configuration rather than call sites.
package ulogger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured-logging surface every core component takes at
// construction. Fields are passed as alternating key/value pairs, mirroring
// the teacher's util.Logger contract.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	New(service string, fields ...interface{}) Logger
}

type zLogger struct {
	zerolog.Logger
	service string
}

// New constructs a Logger for the named service/component at the given
// level ("DEBUG", "INFO", "WARN", "ERROR"; defaults to "INFO").
func New(service string, level ...string) Logger {
	if service == "" {
		service = "tos-core"
	}

	var z zLogger
	if prettyEnabled() {
		z = zLogger{prettyWriter(service), service}
	} else {
		z = zLogger{
			zerolog.New(os.Stdout).With().
				Timestamp().
				Str("service", service).
				Logger(),
			service,
		}
	}

	lvl := zerolog.InfoLevel
	if len(level) > 0 {
		lvl = parseLevel(level[0])
	}
	z.Logger = z.Logger.Level(lvl)

	return &z
}

func prettyEnabled() bool {
	return os.Getenv("TOS_PRETTY_LOGS") != "0"
}

func prettyWriter(service string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	output.FormatTimestamp = func(i interface{}) string {
		s, ok := i.(string)
		if !ok {
			return ""
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return s
		}
		return t.Format("15:04:05")
	}
	return zerolog.New(output).With().Timestamp().Str("service", service).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *zLogger) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *zLogger) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *zLogger) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *zLogger) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msg(fmt.Sprintf(format, args...))
}

func (z *zLogger) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msg(fmt.Sprintf(format, args...))
}

// New returns a child logger scoped to a sub-component, carrying
// key/value fields (e.g. "block_hash", h) into every subsequent line.
func (z *zLogger) New(service string, fields ...interface{}) Logger {
	ctx := z.Logger.With().Str("component", service)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zLogger{ctx.Logger(), service}
}
