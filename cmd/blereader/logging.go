package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blereader/pkg/config"
)

// configureLogger builds the logger from the config, with --log-level taking precedence.
// Returns an error if the log-level flag is invalid.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logger := cfg.NewLogger()

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr == "" {
		return logger, nil
	}

	switch logLevelStr {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	case "silent":
		logger.SetLevel(logrus.PanicLevel)
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, error or silent)", logLevelStr)
	}
	return logger, nil
}
