package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alwitt/visitsync/config"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

/*
setupLogging install the apex/log handler. Console output uses the CLI handler on a
terminal and JSON otherwise; a log file, when configured, is written as rotated JSON.

	@param cfg config.LogConfig - log settings
	@returns closer of the log file
*/
func setupLogging(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s' [%w]", cfg.Level, err)
	}

	var console log.Handler
	if cfg.JSON || !term.IsTerminal(int(os.Stderr.Fd())) {
		console = json.New(os.Stderr)
	} else {
		console = cli.New(os.Stderr)
	}

	var closer io.Closer = nopCloser{}
	handler := console
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		handler = multi.New(console, json.New(rotator))
		closer = rotator
	}

	log.SetHandler(handler)
	log.SetLevel(level)
	return closer, nil
}

// applyLogLevel change the log level of a running process
func applyLogLevel(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).WithField("level", level).Warn("Ignoring invalid log level")
		return
	}
	log.SetLevel(parsed)
	log.WithField("level", level).Info("Log level changed")
}
