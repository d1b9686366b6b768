package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Spool   SpoolConfig   `mapstructure:"spool"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SourceConfig selects where the modem byte stream comes from. Line
// parameters of the serial port are fixed by the transmitter and are not
// configurable.
type SourceConfig struct {
	Kind        string        `mapstructure:"kind"`    // serial, file, tcp or srt
	Device      string        `mapstructure:"device"`  // serial device path
	Path        string        `mapstructure:"path"`    // capture file
	Address     string        `mapstructure:"address"` // tcp or srt relay host:port
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SRT         SRTConfig     `mapstructure:"srt"`
	Reopen      ReopenConfig  `mapstructure:"reopen"`
}

type SRTConfig struct {
	StreamID   string        `mapstructure:"stream_id"`
	Passphrase string        `mapstructure:"passphrase"` // Min 10 chars
	Latency    time.Duration `mapstructure:"latency"`
}

// ReopenConfig controls what the driver does when the source is exhausted.
type ReopenConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxRetries   int           `mapstructure:"max_retries"` // 0 retries forever
}

// SinkConfig selects the single consumer of decoded frames.
type SinkConfig struct {
	Kind   string `mapstructure:"kind"` // console, jsonl or redis
	Path   string `mapstructure:"path"` // jsonl output, "-" for stdout
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"` // approximate cap of the redis stream
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// SpoolConfig sizes the queue between the driver and the redis recorder.
type SpoolConfig struct {
	Dir        string  `mapstructure:"dir"`
	MemorySize int     `mapstructure:"memory_size"`
	Rate       float64 `mapstructure:"rate"` // frames per second admitted
	Burst      int     `mapstructure:"burst"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// HTTP/3 listener, served next to the TCP one when enabled
	HTTP3       bool   `mapstructure:"http3"`
	HTTP3Addr   string `mapstructure:"http3_addr"`
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Load reads configuration from configPath. An empty path loads defaults
// and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override. Only keys with a default are picked up
	// by Unmarshal, so every key gets one.
	v.SetEnvPrefix("FDCLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.kind", "serial")
	v.SetDefault("source.device", "/dev/ttyUSB0")
	v.SetDefault("source.path", "")
	v.SetDefault("source.address", "")
	v.SetDefault("source.dial_timeout", "5s")
	v.SetDefault("source.srt.stream_id", "")
	v.SetDefault("source.srt.passphrase", "")
	v.SetDefault("source.srt.latency", "120ms")
	v.SetDefault("source.reopen.enabled", false)
	v.SetDefault("source.reopen.initial_delay", "500ms")
	v.SetDefault("source.reopen.max_delay", "30s")
	v.SetDefault("source.reopen.multiplier", 2.0)
	v.SetDefault("source.reopen.max_retries", 0)

	// Sink defaults
	v.SetDefault("sink.kind", "console")
	v.SetDefault("sink.path", "-")
	v.SetDefault("sink.stream", "fdclink:frames")
	v.SetDefault("sink.max_len", 100000)

	// Redis defaults
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	// Spool defaults
	v.SetDefault("spool.dir", "/var/lib/fdclink/spool")
	v.SetDefault("spool.memory_size", 4096)
	v.SetDefault("spool.rate", 2000)
	v.SetDefault("spool.burst", 200)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.http3", false)
	v.SetDefault("server.http3_addr", ":8443")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}
