package config

import (
	"fmt"
	"os"
)

func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}

	// Redis and the spool only matter when frames are recorded to redis.
	if c.Sink.Kind == SinkRedis {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
		if err := c.Spool.Validate(); err != nil {
			return fmt.Errorf("spool config: %w", err)
		}
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

const (
	SourceSerial = "serial"
	SourceFile   = "file"
	SourceTCP    = "tcp"
	SourceSRT    = "srt"

	SinkConsole = "console"
	SinkJSONL   = "jsonl"
	SinkRedis   = "redis"
)

func (s *SourceConfig) Validate() error {
	switch s.Kind {
	case SourceSerial:
		if s.Device == "" {
			return fmt.Errorf("serial source requires a device")
		}
	case SourceFile:
		if s.Path == "" {
			return fmt.Errorf("file source requires a path")
		}
	case SourceTCP, SourceSRT:
		if s.Address == "" {
			return fmt.Errorf("%s source requires an address", s.Kind)
		}
		if s.DialTimeout <= 0 {
			return fmt.Errorf("dial_timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown source kind: %q", s.Kind)
	}

	if s.Kind == SourceSRT && s.SRT.Passphrase != "" && len(s.SRT.Passphrase) < 10 {
		return fmt.Errorf("srt passphrase must be at least 10 characters")
	}

	if err := s.Reopen.Validate(); err != nil {
		return fmt.Errorf("reopen: %w", err)
	}

	return nil
}

func (r *ReopenConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.InitialDelay <= 0 {
		return fmt.Errorf("initial_delay must be positive")
	}

	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("max_delay cannot be less than initial_delay")
	}

	if r.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	return nil
}

func (s *SinkConfig) Validate() error {
	switch s.Kind {
	case SinkConsole:
	case SinkJSONL:
		if s.Path == "" {
			return fmt.Errorf("jsonl sink requires a path")
		}
	case SinkRedis:
		if s.Stream == "" {
			return fmt.Errorf("redis sink requires a stream name")
		}
		if s.MaxLen < 0 {
			return fmt.Errorf("max_len cannot be negative")
		}
	default:
		return fmt.Errorf("unknown sink kind: %q", s.Kind)
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (s *SpoolConfig) Validate() error {
	if s.Dir == "" {
		return fmt.Errorf("spool dir cannot be empty")
	}

	if s.MemorySize <= 0 {
		return fmt.Errorf("memory_size must be positive")
	}

	if s.Rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}

	if s.Burst <= 0 {
		return fmt.Errorf("burst must be positive")
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	if !s.HTTP3 {
		return nil
	}

	if s.HTTP3Addr == "" {
		return fmt.Errorf("http3_addr cannot be empty")
	}

	if s.TLSCertFile == "" {
		return fmt.Errorf("TLS certificate file is required for HTTP/3")
	}

	if s.TLSKeyFile == "" {
		return fmt.Errorf("TLS key file is required for HTTP/3")
	}

	// Check if certificate files exist
	if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
	}

	if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}
