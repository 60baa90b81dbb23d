package configs

import (
	"io"
	"os"
	"time"

	format "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process logger. It is usable before InitLog with logrus
// defaults.
var Log = logrus.New()

type LogOptions struct {
	Debug bool
	// File additionally writes to a rotating log file when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func InitLog(opts LogOptions) *logrus.Logger {
	if opts.Debug {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}

	Log.SetFormatter(&format.Formatter{
		HideKeys:        false,
		NoColors:        opts.File != "",
		TimestampFormat: time.RFC3339,
		FieldsOrder:     []string{"component", "category"},
	})

	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		})
	}
	Log.SetOutput(out)

	Log.WithField("component", "log").Debugf("Log component loaded, debug: %t", opts.Debug)
	return Log
}
