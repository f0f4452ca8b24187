package historyexport

import (
	"fmt"
	"strings"

	"github.com/taskflow-labs/taskflow/internal/platform/env"
)

const (
	DestinationObjectStore = "objectstore"
	DestinationStdout      = "stdout"
)

// Config controls history export format and destination.
type Config struct {
	Format      string
	Destination string
	KeyPrefix   string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Format:      env.String("HISTORY_EXPORT_FORMAT", "ndjson"),
		Destination: env.String("HISTORY_EXPORT_DESTINATION", DestinationObjectStore),
		KeyPrefix:   env.String("HISTORY_EXPORT_PREFIX", "boards"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	format := strings.ToLower(strings.TrimSpace(c.Format))
	destination := strings.ToLower(strings.TrimSpace(c.Destination))
	if format == "" {
		format = "ndjson"
	}
	if destination == "" {
		destination = DestinationObjectStore
	}
	if format != "ndjson" {
		return fmt.Errorf("unsupported history export format: %s", format)
	}
	if destination != DestinationObjectStore && destination != DestinationStdout {
		return fmt.Errorf("unsupported history export destination: %s", destination)
	}
	return nil
}
