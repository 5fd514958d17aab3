package logger

import (
	"os"

	"github.com/mtgscribe/gateway/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Development gets a human-readable
// console writer; any other environment logs structured JSON to stdout.
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() && cfg.LogLevel == "" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsDevelopment() {
		out := zerolog.ConsoleWriter{Out: os.Stderr}
		return zerolog.New(out).With().Timestamp().Str("service", "mtg-gateway").Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "mtg-gateway").Logger()
}
