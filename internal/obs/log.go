package obs

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// InitLogger configures the shared JSON logger. Safe to call more than once;
// only the first call wins.
func InitLogger(level string) {
	loggerOnce.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	InitLogger("info")
	return &logger
}
