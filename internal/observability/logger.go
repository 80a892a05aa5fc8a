package observability

import (
	"github.com/danmuck/syndesi/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process logger for a binary and returns a child
// tagged with app and node.
func InitLogger(app, node string) zerolog.Logger {
	logging.ConfigureRuntime()
	return log.Logger.With().Str("app", app).Str("node", node).Logger()
}
