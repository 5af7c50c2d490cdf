// env.go - environment variable bindings
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.debug", "RADIOTRACKER_DEBUG", validateEnvBool},

		{"database.type", "RADIOTRACKER_DATABASE_TYPE", validateEnvOneOf("sqlite", "mysql")},
		{"database.sqlite.path", "RADIOTRACKER_SQLITE_PATH", nil},
		{"database.mysql.host", "RADIOTRACKER_MYSQL_HOST", nil},
		{"database.mysql.port", "RADIOTRACKER_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "RADIOTRACKER_MYSQL_USERNAME", nil},
		{"database.mysql.password", "RADIOTRACKER_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "RADIOTRACKER_MYSQL_DATABASE", nil},

		{"scheduler.workers", "RADIOTRACKER_WORKERS", validateEnvPositiveInt},

		{"realtime.mqtt.enabled", "RADIOTRACKER_MQTT_ENABLED", validateEnvBool},
		{"realtime.mqtt.broker", "RADIOTRACKER_MQTT_BROKER", nil},
		{"realtime.mqtt.username", "RADIOTRACKER_MQTT_USERNAME", nil},
		{"realtime.mqtt.password", "RADIOTRACKER_MQTT_PASSWORD", nil},

		{"webserver.listen", "RADIOTRACKER_LISTEN", nil},
		{"sentry.enabled", "RADIOTRACKER_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "RADIOTRACKER_SENTRY_DSN", nil},
		{"logging.defaultlevel", "RADIOTRACKER_LOG_LEVEL", validateEnvOneOf("trace", "debug", "info", "warn", "error")},
	}
}

// bindEnvVars binds every variable and validates the ones that are set
func bindEnvVars() error {
	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}
	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvPort(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}
