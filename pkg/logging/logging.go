package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Logger writes to stderr and, when configured, to a rotating log file.
type Logger struct {
	*log.Logger
	file *lumberjack.Logger
}

// New returns a process logger. An empty path logs to stderr only. When
// verbose is false, stderr is left quiet and only the file receives output;
// without a file stderr is always used.
func New(path string, verbose bool) (*Logger, error) {
	var writers []io.Writer
	if verbose || path == "" {
		writers = append(writers, os.Stderr)
	}

	l := &Logger{}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
		l.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		writers = append(writers, l.file)
	}

	l.Logger = log.New(io.MultiWriter(writers...), "", log.LstdFlags)
	return l, nil
}

// Named returns a logger sharing the output with a component prefix.
func (l *Logger) Named(component string) *log.Logger {
	return log.New(l.Writer(), "["+component+"] ", l.Flags())
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
