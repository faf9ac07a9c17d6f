package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// LoggerFactory routes pion's internal logs into zerolog. pion info is
// treated as debug.
type LoggerFactory struct {
	Logger zerolog.Logger
}

func NewLoggerFactory(logger zerolog.Logger) *LoggerFactory {
	return &LoggerFactory{Logger: logger}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logAdapter{logger: f.Logger.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type logAdapter struct {
	logger zerolog.Logger
}

func (l *logAdapter) Trace(msg string) { l.logger.Trace().Msg(msg) }

func (l *logAdapter) Tracef(format string, args ...interface{}) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Debug(msg string) { l.logger.Trace().Msg(msg) }

func (l *logAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Info(msg string) { l.logger.Debug().Msg(msg) }

func (l *logAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *logAdapter) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *logAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}
