package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/config"
	"github.com/rs/zerolog"
)

func SetupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	return New(cfg, os.Stdout)
}

// New builds the process logger writing to out. Output is human readable unless the
// configured format is json.
func New(cfg *config.LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	return zerolog.New(writer(cfg.Format, out)).
		With().
		Timestamp().
		Caller().
		Str("service", "docker_fleet_updater").
		Str("host", hostname).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func writer(format string, out io.Writer) io.Writer {
	if strings.EqualFold(format, config.LogFormatJSON) {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		// colors only on a terminal
		NoColor: out != os.Stdout,
	}
}
