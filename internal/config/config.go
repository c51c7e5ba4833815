package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the client
type Config struct {
	App   AppConfig   `yaml:"app"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Robot RobotConfig `yaml:"robot"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment           string  `yaml:"environment"`
	LogLevel              string  `yaml:"log_level"`
	LogFile               string  `yaml:"log_file"`
	LogMaxSizeMB          int     `yaml:"log_max_size_mb"`
	LogMaxBackups         int     `yaml:"log_max_backups"`
	StatusIntervalSeconds int     `yaml:"status_interval_seconds"`
	GracefulShutdownSec   int     `yaml:"graceful_shutdown_sec"`
	LowBatteryPercent     int     `yaml:"low_battery_percent"`
	ProximityWarning      float64 `yaml:"proximity_warning"`
	BatteryLED            bool    `yaml:"battery_led"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	BrokerURL      string `yaml:"broker_url"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	KeepAlive      int    `yaml:"keep_alive"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	PublishTimeout int    `yaml:"publish_timeout"`
	CleanSession   bool   `yaml:"clean_session"`
}

// RobotConfig holds topics and command timing for the Go1
type RobotConfig struct {
	TelemetryTopic   string `yaml:"telemetry_topic"`
	StickTopic       string `yaml:"stick_topic"`
	ActionTopic      string `yaml:"action_topic"`
	LEDTopic         string `yaml:"led_topic"`
	CommandRefreshMs int    `yaml:"command_refresh_ms"`
	ResetBodyMs      int    `yaml:"reset_body_ms"`
}

// CommandRefresh returns the stick re-publish interval; zero means publish once
func (r RobotConfig) CommandRefresh() time.Duration {
	return time.Duration(r.CommandRefreshMs) * time.Millisecond
}

// ResetBodyDuration returns how long ResetBody holds the neutral pose
func (r RobotConfig) ResetBodyDuration() time.Duration {
	return time.Duration(r.ResetBodyMs) * time.Millisecond
}

// Default returns the built-in configuration for a Go1 on its own access point
func Default() *Config {
	return &Config{
		App: AppConfig{
			Environment:           "development",
			LogLevel:              "info",
			LogMaxSizeMB:          10,
			LogMaxBackups:         3,
			StatusIntervalSeconds: 30,
			GracefulShutdownSec:   10,
			LowBatteryPercent:     25,
			ProximityWarning:      0.75,
			BatteryLED:            true,
		},
		MQTT: MQTTConfig{
			BrokerURL:      "tcp://192.168.12.1:1883",
			ClientID:       "go1-control",
			KeepAlive:      60,
			ConnectTimeout: 10,
			PublishTimeout: 5,
			CleanSession:   true,
		},
		Robot: RobotConfig{
			TelemetryTopic:   "robot/state",
			StickTopic:       "controller/stick",
			ActionTopic:      "controller/action",
			LEDTopic:         "child/led",
			CommandRefreshMs: 0,
			ResetBodyMs:      1000,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file
// named by GO1_CONFIG_FILE, and environment variables (including .env).
// Environment variables take precedence over the file.
func LoadConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Default()

	if path := os.Getenv("GO1_CONFIG_FILE"); path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, err
		}
	}

	applyEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile overlays YAML values onto config
func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables, keeping the
// current value as the default
func applyEnv(c *Config) {
	c.App.Environment = getEnvString("APP_ENVIRONMENT", c.App.Environment)
	c.App.LogLevel = getEnvString("APP_LOG_LEVEL", c.App.LogLevel)
	c.App.LogFile = getEnvString("APP_LOG_FILE", c.App.LogFile)
	c.App.LogMaxSizeMB = getEnvInt("APP_LOG_MAX_SIZE_MB", c.App.LogMaxSizeMB)
	c.App.LogMaxBackups = getEnvInt("APP_LOG_MAX_BACKUPS", c.App.LogMaxBackups)
	c.App.StatusIntervalSeconds = getEnvInt("APP_STATUS_INTERVAL_SECONDS", c.App.StatusIntervalSeconds)
	c.App.GracefulShutdownSec = getEnvInt("APP_GRACEFUL_SHUTDOWN_SEC", c.App.GracefulShutdownSec)
	c.App.LowBatteryPercent = getEnvInt("APP_LOW_BATTERY_PERCENT", c.App.LowBatteryPercent)
	c.App.ProximityWarning = getEnvFloat("APP_PROXIMITY_WARNING", c.App.ProximityWarning)
	c.App.BatteryLED = getEnvBool("APP_BATTERY_LED", c.App.BatteryLED)

	c.MQTT.BrokerURL = getEnvString("MQTT_BROKER_URL", c.MQTT.BrokerURL)
	c.MQTT.ClientID = getEnvString("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnvString("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnvString("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.KeepAlive = getEnvInt("MQTT_KEEP_ALIVE", c.MQTT.KeepAlive)
	c.MQTT.ConnectTimeout = getEnvInt("MQTT_CONNECT_TIMEOUT", c.MQTT.ConnectTimeout)
	c.MQTT.PublishTimeout = getEnvInt("MQTT_PUBLISH_TIMEOUT", c.MQTT.PublishTimeout)
	c.MQTT.CleanSession = getEnvBool("MQTT_CLEAN_SESSION", c.MQTT.CleanSession)

	c.Robot.TelemetryTopic = getEnvString("ROBOT_TELEMETRY_TOPIC", c.Robot.TelemetryTopic)
	c.Robot.StickTopic = getEnvString("ROBOT_STICK_TOPIC", c.Robot.StickTopic)
	c.Robot.ActionTopic = getEnvString("ROBOT_ACTION_TOPIC", c.Robot.ActionTopic)
	c.Robot.LEDTopic = getEnvString("ROBOT_LED_TOPIC", c.Robot.LEDTopic)
	c.Robot.CommandRefreshMs = getEnvInt("ROBOT_COMMAND_REFRESH_MS", c.Robot.CommandRefreshMs)
	c.Robot.ResetBodyMs = getEnvInt("ROBOT_RESET_BODY_MS", c.Robot.ResetBodyMs)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.App.StatusIntervalSeconds < 1 {
		return fmt.Errorf("APP_STATUS_INTERVAL_SECONDS must be greater than 0")
	}
	if config.App.LowBatteryPercent < 0 || config.App.LowBatteryPercent > 100 {
		return fmt.Errorf("APP_LOW_BATTERY_PERCENT must be between 0 and 100")
	}
	if config.App.ProximityWarning < 0 || config.App.ProximityWarning > 1 {
		return fmt.Errorf("APP_PROXIMITY_WARNING must be between 0 and 1")
	}

	if config.MQTT.BrokerURL == "" {
		return fmt.Errorf("MQTT_BROKER_URL is required")
	}
	if config.MQTT.ClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required")
	}
	if config.MQTT.ConnectTimeout < 1 {
		return fmt.Errorf("MQTT_CONNECT_TIMEOUT must be greater than 0")
	}
	if config.MQTT.PublishTimeout < 1 {
		return fmt.Errorf("MQTT_PUBLISH_TIMEOUT must be greater than 0")
	}

	topics := map[string]string{
		"ROBOT_TELEMETRY_TOPIC": config.Robot.TelemetryTopic,
		"ROBOT_STICK_TOPIC":     config.Robot.StickTopic,
		"ROBOT_ACTION_TOPIC":    config.Robot.ActionTopic,
		"ROBOT_LED_TOPIC":       config.Robot.LEDTopic,
	}
	for key, topic := range topics {
		if topic == "" {
			return fmt.Errorf("%s is required", key)
		}
		if strings.ContainsAny(topic, "+#") {
			return fmt.Errorf("%s must not contain wildcards: %s", key, topic)
		}
	}
	if config.Robot.CommandRefreshMs < 0 {
		return fmt.Errorf("ROBOT_COMMAND_REFRESH_MS must not be negative")
	}
	if config.Robot.ResetBodyMs < 1 {
		return fmt.Errorf("ROBOT_RESET_BODY_MS must be greater than 0")
	}

	return nil
}

// getEnvString gets environment variable as string with default value
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		fmt.Printf("Warning: Invalid integer value for %s: %s, using default: %d\n", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvFloat gets environment variable as float64 with default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		fmt.Printf("Warning: Invalid float value for %s: %s, using default: %v\n", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool gets environment variable as bool with default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		fmt.Printf("Warning: Invalid boolean value for %s: %s, using default: %t\n", key, value, defaultValue)
	}
	return defaultValue
}
