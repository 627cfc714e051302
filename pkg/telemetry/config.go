package telemetry

import (
	"os"
	"strconv"
)

// Config holds OTLP metrics exporter configuration.
type Config struct {
	Endpoint string
	Enabled  bool
	Insecure bool
}

// LoadConfig reads WORK_OTEL_ENABLED, WORK_OTEL_ENDPOINT and
// WORK_OTEL_INSECURE.
func LoadConfig() Config {
	enabled, _ := strconv.ParseBool(os.Getenv("WORK_OTEL_ENABLED"))
	insecure, _ := strconv.ParseBool(os.Getenv("WORK_OTEL_INSECURE"))

	return Config{
		Endpoint: os.Getenv("WORK_OTEL_ENDPOINT"),
		Enabled:  enabled,
		Insecure: insecure,
	}
}
