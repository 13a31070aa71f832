package common

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// --------------------------------------------------------------------------
// Custom Formatter (implements logrus.Formatter)
// --------------------------------------------------------------------------

// logFormatter renders log lines in a fixed column layout so output from
// different packages lines up.
type logFormatter struct {
	name string
}

func (f *logFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}

	line := fmt.Sprintf("%s %-5s | %-15s | %s\n",
		entry.Time.Format("2006/01/02 15:04:05"),
		level,
		f.name,
		entry.Message,
	)
	return []byte(line), nil
}

// --------------------------------------------------------------------------
// Logger Registry
// --------------------------------------------------------------------------

var (
	loggersMu    sync.Mutex
	loggers      = make(map[string]*logrus.Logger)
	defaultLevel = logrus.InfoLevel
)

// GetLogger returns the named logger, creating it on first use. All loggers
// share the same output format, the name is printed as a column so log lines
// can be attributed to their package.
func GetLogger(pkgName string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[pkgName]; ok {
		return l
	}

	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(defaultLevel)
	l.SetFormatter(&logFormatter{name: pkgName})
	loggers[pkgName] = l

	return l
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logrus.Level
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warning", "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers sets the log level from the server configuration on all
// registered loggers. Loggers created afterwards inherit the same level.
func InitLoggers(config ServerConfig) {
	level := parseLogLevel(config.LogLevel)

	loggersMu.Lock()
	defer loggersMu.Unlock()

	defaultLevel = level
	for _, l := range loggers {
		l.SetLevel(level)
	}
}
