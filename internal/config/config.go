package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Sonar    SonarConfig    `json:"sonar"`
	Sampler  SamplerConfig  `json:"sampler"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Postgres PostgresConfig `json:"postgres"`
	InfluxDB InfluxConfig   `json:"influxdb"`
	Logger   LoggerConfig   `json:"logger"`
	Service  ServiceConfig  `json:"service"`
	HTTP     HTTPConfig     `json:"http"`
}

// SensorSpec is one sensor definition parsed from SONAR_SENSORS.
type SensorSpec struct {
	Name        string   `json:"name"`
	TriggerLine string   `json:"trigger_line"`
	EchoLine    string   `json:"echo_line"`
	MinRange    float64  `json:"min_range_m"`
	MaxRange    float64  `json:"max_range_m"`
	FieldOfView *float64 `json:"field_of_view_deg,omitempty"`
}

type SonarConfig struct {
	Sensors           []SensorSpec `json:"sensors"`
	Backend           string       `json:"backend"`
	SimTargetDistance float64      `json:"sim_target_distance_m"`
}

type SamplerConfig struct {
	Interval        time.Duration `json:"interval"`
	CommandsEnabled bool          `json:"commands_enabled"`
}

type MQTTConfig struct {
	Host                 string        `json:"host"`
	Port                 int           `json:"port"`
	Username             string        `json:"username"`
	Password             string        `json:"password"`
	ClientID             string        `json:"client_id"`
	BaseTopic            string        `json:"base_topic"`
	QoS                  byte          `json:"qos"`
	KeepAlive            int           `json:"keep_alive"`
	AutoReconnect        bool          `json:"auto_reconnect"`
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval"`
	CleanSession         bool          `json:"clean_session"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Dsn      string `json:"dsn"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	TimeZone string `json:"timezone"`
}

type InfluxConfig struct {
	URL          string `json:"url"`
	Token        string `json:"token"`
	Organization string `json:"organization"`
	Bucket       string `json:"bucket"`
}

type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type ServiceConfig struct {
	Name                  string        `json:"name"`
	Version               string        `json:"version"`
	SensorTimeoutDuration time.Duration `json:"sensor_timeout_duration"`
	JanitorInterval       time.Duration `json:"janitor_interval"`
}

type HTTPConfig struct {
	Port int `json:"port"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Sonar: SonarConfig{
			Backend:           getEnv("GPIO_BACKEND", "periph"),
			SimTargetDistance: getEnvAsFloat("SIM_TARGET_DISTANCE", 1.0),
		},
		Sampler: SamplerConfig{
			Interval:        getEnvAsDuration("SAMPLE_INTERVAL", "1s"),
			CommandsEnabled: getEnvAsBool("SAMPLE_COMMANDS_ENABLED", true),
		},
		MQTT: MQTTConfig{
			Host:                 getEnv("MQTT_HOST", "localhost"),
			Port:                 getEnvAsInt("MQTT_PORT", 1883),
			Username:             getEnv("MQTT_USERNAME", ""),
			Password:             getEnv("MQTT_PASSWORD", ""),
			ClientID:             getEnv("MQTT_CLIENT_ID", "sonar-ranger"),
			BaseTopic:            getEnv("MQTT_BASE_TOPIC", "sonar/v1"),
			QoS:                  byte(getEnvAsInt("MQTT_QOS", 1)),
			KeepAlive:            getEnvAsInt("MQTT_KEEP_ALIVE", 60),
			AutoReconnect:        getEnvAsBool("MQTT_AUTO_RECONNECT", true),
			MaxReconnectInterval: getEnvAsDuration("MQTT_MAX_RECONNECT_INTERVAL", "10s"),
			CleanSession:         getEnvAsBool("MQTT_CLEAN_SESSION", true),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DATABASE", "sonar"),
			SSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		InfluxDB: InfluxConfig{
			URL:          getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Token:        getEnv("INFLUXDB_TOKEN", ""),
			Organization: getEnv("INFLUXDB_ORG", "sonar_ranger"),
			Bucket:       getEnv("INFLUXDB_BUCKET", "readings"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Service: ServiceConfig{
			Name:                  getEnv("SERVICE_NAME", "sonar-ranger"),
			Version:               getEnv("SERVICE_VERSION", "1.0.0"),
			SensorTimeoutDuration: getEnvAsDuration("SENSOR_TIMEOUT_DURATION", "5m"),
			JanitorInterval:       getEnvAsDuration("JANITOR_INTERVAL", "1m"),
		},
		HTTP: HTTPConfig{
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
	}

	sensors, err := ParseSensorSpecs(getEnv("SONAR_SENSORS", "front:GPIO23:GPIO24:0.05:4.0"))
	if err != nil {
		return nil, err
	}
	config.Sonar.Sensors = sensors

	baseTopic, found := strings.CutSuffix(config.MQTT.BaseTopic, "/")
	if found {
		config.MQTT.BaseTopic = baseTopic
	}

	config.Postgres.Dsn = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		config.Postgres.Host, config.Postgres.Port, config.Postgres.User,
		config.Postgres.Password, config.Postgres.Database,
		func() string {
			if config.Postgres.SSLMode == "false" || config.Postgres.SSLMode == "" {
				return "disable"
			}
			return config.Postgres.SSLMode
		}(),
		config.Postgres.TimeZone,
	)

	return config, config.validate()
}

// ParseSensorSpecs parses a comma-separated list of
// name:trigger:echo:min:max[:fov_deg] entries.
func ParseSensorSpecs(raw string) ([]SensorSpec, error) {
	var specs []SensorSpec
	usedNames := make(map[string]bool)
	usedLines := make(map[string]string)

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		fields := strings.Split(entry, ":")
		if len(fields) != 5 && len(fields) != 6 {
			return nil, fmt.Errorf(
				"sensor spec %q: want name:trigger:echo:min:max[:fov_deg], got %d fields",
				entry, len(fields))
		}

		spec := SensorSpec{
			Name:        strings.TrimSpace(fields[0]),
			TriggerLine: strings.TrimSpace(fields[1]),
			EchoLine:    strings.TrimSpace(fields[2]),
		}

		var err error
		if spec.MinRange, err = strconv.ParseFloat(fields[3], 64); err != nil {
			return nil, fmt.Errorf("sensor spec %q: bad min range %q", entry, fields[3])
		}
		if spec.MaxRange, err = strconv.ParseFloat(fields[4], 64); err != nil {
			return nil, fmt.Errorf("sensor spec %q: bad max range %q", entry, fields[4])
		}
		if len(fields) == 6 {
			fov, err := strconv.ParseFloat(fields[5], 64)
			if err != nil {
				return nil, fmt.Errorf("sensor spec %q: bad field of view %q", entry, fields[5])
			}
			spec.FieldOfView = &fov
		}

		if usedNames[spec.Name] {
			return nil, fmt.Errorf("sensor name %q is defined twice", spec.Name)
		}
		usedNames[spec.Name] = true

		// Lines are exclusively owned; a reused line is a wiring mistake.
		for _, line := range []string{spec.TriggerLine, spec.EchoLine} {
			if owner, taken := usedLines[line]; taken {
				return nil, fmt.Errorf("line %q of sensor %q is already used by sensor %q",
					line, spec.Name, owner)
			}
			usedLines[line] = spec.Name
		}

		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no sensors configured")
	}

	return specs, nil
}

func (c *Config) validate() error {
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL has to be positive")
	}
	switch c.Sonar.Backend {
	case "periph", "rpio", "sim":
	default:
		return fmt.Errorf("GPIO_BACKEND has to be periph, rpio or sim, got %q", c.Sonar.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
