package cmd

import (
	"fmt"
	"os"
	"strings"

	"lottery/config"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the configured level and format to the standard logger
func ConfigureLogging(cfg *config.Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q, expected text or json", cfg.LogFormat)
	}
	return nil
}
