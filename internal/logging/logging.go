package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/odin-market/progression/internal/config"
	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger from cfg and returns it.
func Setup(cfg config.LogConfig) (*logrus.Logger, error) {
	log := logrus.StandardLogger()
	if err := apply(log, cfg); err != nil {
		return nil, err
	}
	return log, nil
}

// New returns a separate logger writing to out.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	if err := apply(log, cfg); err != nil {
		return nil, err
	}
	return log, nil
}

func apply(log *logrus.Logger, cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
