// Package logging sets up the run logger: JSON lines to a log file for
// machines, plain text to stderr for people.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultFile is the machine-readable log written in the working directory.
const DefaultFile = "iptvsift.log"

// Options configures New.
type Options struct {
	File   string    // JSON log path; "" disables the file
	Level  string    // debug, info, warn, error
	Stderr io.Writer // human-readable mirror; nil disables it
	RunID  string    // generated when empty
}

// New returns a logger whose entries all carry run_id, plus a close func for
// the log file.
func New(opts Options) (*logrus.Entry, func() error, error) {
	lvl := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
		lvl = l
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(io.Discard)

	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
		}
		log.SetOutput(f)
		closeFn = f.Close
	}
	if opts.Stderr != nil {
		log.AddHook(&writerHook{
			w: opts.Stderr,
			f: &logrus.TextFormatter{FullTimestamp: true, DisableColors: true},
		})
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return log.WithField("run_id", runID), closeFn, nil
}

// Discard returns a logger that drops everything. Components use it when
// handed a nil logger.
func Discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// writerHook mirrors every entry to w with its own formatter.
type writerHook struct {
	mu sync.Mutex
	w  io.Writer
	f  logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *writerHook) Fire(e *logrus.Entry) error {
	b, err := h.f.Format(e)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(b)
	return err
}
