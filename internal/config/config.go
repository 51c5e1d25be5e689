// Package config assembles runtime settings from the environment, the only
// configuration surface the deployment exposes.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/swingbridge/intakeflow/internal/abc"
	"github.com/swingbridge/intakeflow/internal/mindbody"
)

const defaultHTTPTimeout = 30 * time.Second

// Config is everything the binaries need beyond the AWS SDK's own config.
type Config struct {
	ABC      abc.Config
	MindBody mindbody.Config

	Thresholds abc.Thresholds

	AttemptsTable  string
	QueueURL       string
	AlertsTopicARN string

	ContractName string
	LocationID   int

	RunLocal bool
}

// FromEnv reads the full configuration. Missing values come back zero; each
// binary validates the subset it actually needs.
func FromEnv() Config {
	return Config{
		ABC: abc.Config{
			Base:    os.Getenv("ABC_BASE"),
			AppID:   os.Getenv("ABC_APP_ID"),
			AppKey:  os.Getenv("ABC_APP_KEY"),
			Timeout: defaultHTTPTimeout,
		},
		MindBody: mindbody.Config{
			Base:        os.Getenv("MBO_BASE"),
			SiteID:      os.Getenv("MBO_SITE_ID"),
			APIKey:      os.Getenv("MBO_API_KEY"),
			AppName:     os.Getenv("MBO_APP_NAME"),
			Username:    os.Getenv("MBO_USERNAME"),
			Password:    os.Getenv("MBO_PASSWORD"),
			StaticToken: os.Getenv("MBO_STATIC_TOKEN"),
			Timeout:     defaultHTTPTimeout,
		},
		Thresholds:     abc.ThresholdsFromEnv(),
		AttemptsTable:  os.Getenv("INTAKE_ATTEMPTS_TABLE"),
		QueueURL:       os.Getenv("INTAKE_QUEUE_URL"),
		AlertsTopicARN: os.Getenv("OPERATOR_ALERTS_TOPIC_ARN"),
		ContractName:   os.Getenv("MBO_CONTRACT_NAME"),
		LocationID:     envInt("MBO_LOCATION_ID", 1),
		RunLocal:       os.Getenv("RUN_LOCAL") == "true",
	}
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, raw, def)
		return def
	}
	return n
}
