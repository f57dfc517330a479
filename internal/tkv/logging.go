package tkv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// badgerLogger routes badger's printf logging into slog. Badger is chatty at
// info level, so info is demoted to debug.
type badgerLogger struct {
	slogger *slog.Logger
}

func (b *badgerLogger) log(level slog.Level, format string, args ...interface{}) {
	if !b.slogger.Enabled(context.Background(), level) {
		return
	}
	b.slogger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.log(slog.LevelError, format, args...)
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.log(slog.LevelWarn, format, args...)
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.log(slog.LevelDebug, format, args...)
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.log(slog.LevelDebug, format, args...)
}

func newLogger(slogger *slog.Logger) badger.Logger {
	return &badgerLogger{slogger: slogger}
}
