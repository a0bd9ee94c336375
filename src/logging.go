package coinsig

// Levelled, optionally coloured output.

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	loggerMu      sync.RWMutex
	defaultLogger = NewLogger(os.Stderr, log.InfoLevel, "text")
)

/*------------------------------------------------------------------
 *
 * Name:	NewLogger
 *
 * Inputs:	w	- Destination.
 *		level	- Minimum level written.
 *		format	- "text" (coloured when w is a terminal),
 *			  "logfmt" or "json".
 *
 *---------------------------------------------------------------*/

func NewLogger(w io.Writer, level log.Level, format string) *log.Logger {
	var formatter = log.TextFormatter
	switch strings.ToLower(format) {
	case "logfmt":
		formatter = log.LogfmtFormatter
	case "json":
		formatter = log.JSONFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "coinsig",
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Formatter:       formatter,
	})
}

// ParseLevel accepts debug, info, warn, error.  "trace" is treated
// as debug, the lowest level we have.
func ParseLevel(s string) (log.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return log.DebugLevel, nil
	}
	var level, err = log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, configError("parse log level", err)
	}
	return level, nil
}

// Logger returns the package default logger.
func Logger() *log.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// SetLogger replaces the package default logger.
func SetLogger(l *log.Logger) {
	if l == nil {
		return
	}
	loggerMu.Lock()
	defaultLogger = l
	loggerMu.Unlock()
}

func loggerOr(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return Logger()
}
