package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component derives a tagged logger from the process-wide logger.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
