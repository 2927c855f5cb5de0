// Package logging builds the structured logger every microrpc process
// shares: logrus output, rotated to disk via lumberjack, optionally
// colorized on an interactive console.
package logging

import (
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures where and how logs are written.
type Options struct {
	// Path is the rotated log file's path. Empty means stderr only.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string // parsed via logrus.ParseLevel; empty means Info
	JSON       bool
	Color      bool
}

// New builds a logger per Options. Construction never fails: an
// unparseable level falls back to Info rather than aborting startup,
// matching the framework's philosophy that a logging misconfiguration
// should degrade, not crash, a running service.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: !opts.Color,
		})
	}

	if opts.Path == "" {
		log.SetOutput(os.Stderr)
		return log
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    firstNonZero(opts.MaxSizeMB, 100),
		MaxBackups: firstNonZero(opts.MaxBackups, 5),
		MaxAge:     firstNonZero(opts.MaxAgeDays, 28),
		Compress:   true,
	}
	if opts.Color {
		color.NoColor = false
	}
	log.SetOutput(rotator)
	return log
}

func firstNonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
