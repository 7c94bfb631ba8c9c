package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL             = "https://api.getbits.app"
	DefaultSupportedCurrencies = "GBP"
	DefaultGatewayTimeoutMs    = 30_000
	DefaultCaptureIntervalMs   = 3_600_000
	DefaultMigrationsDir       = "migrations"
)

type Database struct {
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	SSLMode       string `mapstructure:"ssl-mode"`
	MigrationsDir string `mapstructure:"migrations-dir"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	VerificationRequests string `mapstructure:"verification-requests"`
	OrderNotifications   string `mapstructure:"order-notifications"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

// Gateway holds the Bits provider connection settings. It is read once at
// startup and never mutated afterwards.
type Gateway struct {
	Active              bool   `mapstructure:"active"`
	BaseURL             string `mapstructure:"base-url"`
	APIKey              string `mapstructure:"api-key"`
	SupportedCurrencies string `mapstructure:"supported-currencies"`
	TimeoutMs           int    `mapstructure:"timeout-ms"`
}

// Currencies returns the upper-cased supported currency codes.
func (g Gateway) Currencies() []string {
	var currencies []string
	for _, c := range strings.Split(g.SupportedCurrencies, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			currencies = append(currencies, c)
		}
	}
	return currencies
}

type Capture struct {
	Enabled    bool `mapstructure:"enabled"`
	IntervalMs int  `mapstructure:"interval-ms"`
}

type Content struct {
	PublicURL string `mapstructure:"public-url"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Capture  Capture  `mapstructure:"capture"`
	Content  Content  `mapstructure:"content"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.ssl-mode", "disable")
	v.SetDefault("database.migrations-dir", DefaultMigrationsDir)
	v.SetDefault("kafka.broker.url", "localhost:9092")
	v.SetDefault("kafka.topic.verification-requests", "payment-verification-requests")
	v.SetDefault("kafka.topic.order-notifications", "order-notifications")
	v.SetDefault("kafka.reader.group-id", "bits-gateway")
	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)
	v.SetDefault("gateway.active", true)
	v.SetDefault("gateway.base-url", DefaultBaseURL)
	v.SetDefault("gateway.supported-currencies", DefaultSupportedCurrencies)
	v.SetDefault("gateway.timeout-ms", DefaultGatewayTimeoutMs)
	v.SetDefault("capture.enabled", false)
	v.SetDefault("capture.interval-ms", DefaultCaptureIntervalMs)
	v.SetDefault("server.port", "8080")
	v.SetDefault("metrics.interval-ms", 10_000)
}

// LoadConfig reads config.yaml from path. Values can be overridden by
// environment variables, e.g. GATEWAY_API_KEY for gateway.api-key. A .env
// file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	return &config, nil
}
