// Package runlog writes the append-only run log: one timestamped record per
// action, command output and failure, each followed by a blank line.
package runlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/cfgpush/pkg/util"
)

// DefaultPath is relative to the working directory.
const DefaultPath = "output.log"

// TimestampFormat renders e.g. 2024-03-01 14:02:11,417.
const TimestampFormat = "2006-01-02 15:04:05,000"

// Formatter renders "<timestamp> - <message>" plus a blank line.
type Formatter struct{}

func (Formatter) Format(e *logrus.Entry) ([]byte, error) {
	b := make([]byte, 0, len(TimestampFormat)+len(e.Message)+5)
	b = e.Time.AppendFormat(b, TimestampFormat)
	b = append(b, " - "...)
	b = append(b, e.Message...)
	b = append(b, '\n', '\n')
	return b, nil
}

// Logger is a run log. Writes never fail from the caller's point of view.
type Logger struct {
	log  *logrus.Logger
	file *os.File
}

// New writes records to w.
func New(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(Formatter{})
	return &Logger{log: l}
}

// Open appends to the file at path, creating it if needed. If the file
// cannot be opened a warning is printed and records are discarded.
func Open(path string) *Logger {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		util.Warnf("run log disabled: %v", err)
		return New(io.Discard)
	}
	l := New(f)
	l.file = f
	return l
}

// Record appends one record.
func (l *Logger) Record(msg string) {
	l.log.Info(msg)
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.log.SetOutput(io.Discard)
	return err
}
