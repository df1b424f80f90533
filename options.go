package respwire

import (
	"fmt"
	"time"

	"github.com/raniellyferreira/respwire/protocol"
)

// config holds the configuration for a Conn
type config struct {
	// Buffering
	blockSize           int
	commandBlockSize    int
	maxBufferLength     int64
	preambleReservation int

	// Timeouts
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	// Observability
	logger  Logger
	metrics MetricsCollector

	// Handshake
	clientName string
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		blockSize:        protocol.DefaultStreamBlockSize,
		commandBlockSize: protocol.DefaultCommandBlockSize,
		maxBufferLength:  0, // unlimited
		connectTimeout:   5 * time.Second,
		readTimeout:      30 * time.Second,
		writeTimeout:     10 * time.Second,
		logger:           &defaultLogger{},
		metrics:          nopMetrics{},
	}
}

// Option represents a configuration option for a Conn
type Option func(*config) error

func newConfig(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithBlockSize sets the segment size used to buffer replies
//
// Example:
//
//	WithBlockSize(16 * 1024)
func WithBlockSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidConfig, size)
		}
		c.blockSize = size
		return nil
	}
}

// WithCommandBlockSize sets the segment size used to serialize commands
func WithCommandBlockSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return fmt.Errorf("%w: command block size must be positive, got %d", ErrInvalidConfig, size)
		}
		c.commandBlockSize = size
		return nil
	}
}

// WithMaxBufferLength limits the bytes buffered for a single reply.
// When set to 0, no limit is enforced.
//
// Example:
//
//	WithMaxBufferLength(512 * 1024 * 1024)
func WithMaxBufferLength(bytes int64) Option {
	return func(c *config) error {
		if bytes < 0 {
			return ErrInvalidConfig
		}
		c.maxBufferLength = bytes
		return nil
	}
}

// WithPreambleReservation reserves space ahead of every command for a
// preamble such as a SELECT, filled with RequestBuffer.WithPreamble
func WithPreambleReservation(bytes int) Option {
	return func(c *config) error {
		if bytes < 0 {
			return ErrInvalidConfig
		}
		c.preambleReservation = bytes
		return nil
	}
}

// WithConnectTimeout sets the dial timeout
//
// Example:
//
//	WithConnectTimeout(10 * time.Second)
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read timeout used when the context has no
// deadline. Zero disables it.
//
// Example:
//
//	WithReadTimeout(30 * time.Second)
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout used when the context has no
// deadline. Zero disables it.
//
// Example:
//
//	WithWriteTimeout(10 * time.Second)
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger for the connection
//
// Example:
//
//	WithLogger(myCustomLogger)
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//
//	WithMetrics(metrics.NewPrometheus())
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		if collector == nil {
			return ErrInvalidConfig
		}
		c.metrics = collector
		return nil
	}
}

// WithClientName sends CLIENT SETNAME with the given name after dialing
func WithClientName(name string) Option {
	return func(c *config) error {
		for i := 0; i < len(name); i++ {
			if name[i] == ' ' || name[i] == '\n' || name[i] == '\r' {
				return fmt.Errorf("%w: client name cannot contain spaces or newlines", ErrInvalidConfig)
			}
		}
		c.clientName = name
		return nil
	}
}
