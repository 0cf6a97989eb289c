// Package obslog configures the process-wide zerolog logger, the way
// cmd/cryptorun's main.go sets up console vs. structured JSON output
// depending on environment.
package obslog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the global logger setup.
type Config struct {
	// Level is one of zerolog's level strings (debug, info, warn,
	// error); an unrecognized or empty value defaults to info.
	Level string
	// JSON selects structured JSON output (production) over the
	// human-readable console writer (local/dev).
	JSON bool
}

// Init installs cfg as the process-wide zerolog logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
