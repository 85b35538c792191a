package common

import (
	"os"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Quotes allocate short-lived uint256 temporaries; a higher GOGC trades memory for fewer pauses.
const DefaultGOGC = 400

// InitRuntime applies the process-wide log level and GC tuning.
// GOGC from the environment always wins over the default.
func InitRuntime(logLevel string) {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(DefaultGOGC)
		log.Info().Int("GOGC", DefaultGOGC).Msg("[runtime] set GOGC")
	}
	log.Info().Str("level", level.String()).Msg("[runtime] log level configured")
}
