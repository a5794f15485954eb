package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderflow/models"
)

type Config struct {
	Orderflow  OrderflowConfig  `yaml:"orderflow"`
	Instrument string           `yaml:"instrument"`
	Debug      bool             `yaml:"debug"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Source     SourceConfig     `yaml:"source"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type OrderflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ChannelsConfig sizes the bounded queues between pipeline stages.
type ChannelsConfig struct {
	InboundBuffer    int `yaml:"inbound_buffer"`
	MergedBuffer     int `yaml:"merged_buffer"`
	BroadcastBuffer  int `yaml:"broadcast_buffer"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type AggregatorConfig struct {
	Depth int `yaml:"depth"`
	// StaleAfter excludes a source from the merge once its last snapshot is
	// older than this. Zero keeps every snapshot valid indefinitely.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	LocalIP  string               `yaml:"local_ip"`
	Binance  BinanceSourceConfig  `yaml:"binance"`
	Bitstamp BitstampSourceConfig `yaml:"bitstamp"`
	Bybit    BybitSourceConfig    `yaml:"bybit"`
}

type BinanceSourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type BitstampSourceConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

type BybitSourceConfig struct {
	Enabled           bool                 `yaml:"enabled"`
	URL               string               `yaml:"url"`
	Category          string               `yaml:"category"`
	IntervalMs        int                  `yaml:"interval_ms"`
	RequestsPerSecond int                  `yaml:"requests_per_second"`
	BurstSize         int                  `yaml:"burst_size"`
	Timeout           time.Duration        `yaml:"timeout"`
	ConnectionPool    ConnectionPoolConfig `yaml:"connection_pool"`
}

type GRPCConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Address        string        `yaml:"address"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DashboardConfig controls the JSON status API.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	History         int           `yaml:"history"`
	LogHistory      int           `yaml:"log_history"`
}

// Default returns the configuration used when no file is supplied. It
// streams ethbtc from Binance and Bitstamp and serves gRPC on [::1]:10000.
func Default() *Config {
	return &Config{
		Orderflow:  OrderflowConfig{Name: "orderflow", Version: "0.1.0"},
		Instrument: "ethbtc",
		Channels: ChannelsConfig{
			InboundBuffer:    64,
			MergedBuffer:     64,
			BroadcastBuffer:  64,
			SubscriberBuffer: 4,
		},
		Aggregator: AggregatorConfig{Depth: models.DepthLimit},
		Source: SourceConfig{
			Binance: BinanceSourceConfig{
				Enabled:        true,
				URL:            "wss://stream.binance.us:9443/ws",
				ReconnectDelay: 5 * time.Second,
			},
			Bitstamp: BitstampSourceConfig{
				Enabled:        true,
				URL:            "wss://ws.bitstamp.net",
				ReconnectDelay: 5 * time.Second,
				KeepAlive:      20 * time.Second,
			},
			Bybit: BybitSourceConfig{
				URL:               "https://api.bybit.com",
				Category:          "spot",
				IntervalMs:        500,
				RequestsPerSecond: 5,
				BurstSize:         1,
				Timeout:           5 * time.Second,
				ConnectionPool: ConnectionPoolConfig{
					MaxIdleConns:    2,
					MaxConnsPerHost: 2,
					IdleConnTimeout: 90 * time.Second,
				},
			},
		},
		GRPC: GRPCConfig{
			Address:         "[::1]:10000",
			ShutdownTimeout: 5 * time.Second,
		},
		Kafka:   KafkaConfig{Topic: "orderflow.merged"},
		Metrics: MetricsConfig{ReportInterval: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		CloudWatch: CloudWatchConfig{
			Namespace: "Orderflow",
			Dashboard: "Orderflow",
		},
		Dashboard: DashboardConfig{
			Address:         "127.0.0.1:8080",
			RefreshInterval: time.Second,
			History:         300,
			LogHistory:      200,
		},
	}
}

// LoadConfig reads the YAML file at path on top of Default. A missing file is
// not an error; the defaults are used as they are.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("INSTRUMENT"); v != "" {
		config.Instrument = strings.TrimSpace(v)
	}
	if v := os.Getenv("GRPC_ADDRESS"); v != "" {
		config.GRPC.Address = strings.TrimSpace(v)
	}

	if config.CloudWatch.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
}

// Validate re-checks a configuration after flags have been applied.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(cfg *Config) error {
	if cfg.Orderflow.Name == "" {
		return fmt.Errorf("orderflow.name is required")
	}

	if cfg.Orderflow.Version == "" {
		return fmt.Errorf("orderflow.version is required")
	}

	cfg.Instrument = strings.TrimSpace(cfg.Instrument)
	if cfg.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}

	if cfg.Channels.InboundBuffer <= 0 {
		return fmt.Errorf("channels.inbound_buffer must be greater than 0")
	}
	if cfg.Channels.MergedBuffer <= 0 {
		return fmt.Errorf("channels.merged_buffer must be greater than 0")
	}
	if cfg.Channels.BroadcastBuffer <= 0 {
		return fmt.Errorf("channels.broadcast_buffer must be greater than 0")
	}
	if cfg.Channels.SubscriberBuffer <= 0 {
		return fmt.Errorf("channels.subscriber_buffer must be greater than 0")
	}

	if cfg.Aggregator.Depth <= 0 || cfg.Aggregator.Depth > 1000 {
		return fmt.Errorf("aggregator.depth must be between 1 and 1000")
	}
	if cfg.Aggregator.StaleAfter < 0 {
		return fmt.Errorf("aggregator.stale_after must not be negative")
	}

	if !cfg.Source.Binance.Enabled && !cfg.Source.Bitstamp.Enabled && !cfg.Source.Bybit.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	if cfg.Source.Binance.Enabled && cfg.Source.Binance.URL == "" {
		return fmt.Errorf("source.binance.url is required when binance is enabled")
	}
	if cfg.Source.Bitstamp.Enabled && cfg.Source.Bitstamp.URL == "" {
		return fmt.Errorf("source.bitstamp.url is required when bitstamp is enabled")
	}
	if cfg.Source.Bybit.Enabled {
		if cfg.Source.Bybit.URL == "" {
			return fmt.Errorf("source.bybit.url is required when bybit is enabled")
		}
		if cfg.Source.Bybit.IntervalMs <= 0 {
			return fmt.Errorf("source.bybit.interval_ms must be greater than 0")
		}
	}

	if cfg.GRPC.Address == "" {
		return fmt.Errorf("grpc.address is required")
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.RefreshInterval < 0 {
		return fmt.Errorf("dashboard.refresh_interval must not be negative")
	}

	if cfg.CloudWatch.Enabled && cfg.CloudWatch.Namespace == "" {
		return fmt.Errorf("cloudwatch.namespace is required when cloudwatch is enabled")
	}

	return nil
}
