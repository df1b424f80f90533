// Package metrics exports connection metrics to Prometheus. A *Prometheus
// satisfies respwire.MetricsCollector and is passed to respwire.WithMetrics.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raniellyferreira/respwire/protocol"
)

// Config configures the Prometheus collector
type Config struct {
	// Namespace is the metrics namespace (default: "respwire")
	Namespace string

	// Subsystem is the metrics subsystem (default: "")
	Subsystem string

	// ConstLabels are constant labels added to all metrics
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for command duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collector
type Option func(*Config)

// WithNamespace sets the metrics namespace
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the command duration histogram buckets
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "respwire",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus records connection metrics:
//   - respwire_commands_total: commands by name
//   - respwire_command_duration_seconds: round-trip duration by command
//   - respwire_network_bytes_total: bytes by direction ("in" or "out")
//   - respwire_frames_total: complete reply frames received
//   - respwire_frame_bytes: reply frame sizes
//   - respwire_errors_total: errors by type
//   - respwire_segments_in_use: pooled buffer segments currently held
//   - respwire_segments_allocated_total: pooled buffer segments handed out
type Prometheus struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	networkBytes    *prometheus.CounterVec
	framesTotal     prometheus.Counter
	frameBytes      prometheus.Histogram
	errorsTotal     *prometheus.CounterVec

	segmentsInUse     prometheus.GaugeFunc
	segmentsAllocated prometheus.CounterFunc
}

// NewPrometheus registers the collector's metrics. Registering twice with
// the same registry and namespace panics, as promauto does.
func NewPrometheus(opts ...Option) *Prometheus {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)

	return &Prometheus{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Total number of commands completed",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "command_duration_seconds",
			Help:        "Command round-trip duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"command"}),

		networkBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "network_bytes_total",
			Help:        "Total bytes transferred by direction",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),

		framesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of reply frames received",
			ConstLabels: config.ConstLabels,
		}),

		frameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_bytes",
			Help:        "Size of reply frames in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(16, 4, 10), // 16B to 4MB
		}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		segmentsInUse: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "segments_in_use",
			Help:        "Pooled buffer segments currently held by buffers and leases",
			ConstLabels: config.ConstLabels,
		}, func() float64 {
			return float64(protocol.GetPoolStats().InUse)
		}),

		segmentsAllocated: factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "segments_allocated_total",
			Help:        "Total pooled buffer segments handed out",
			ConstLabels: config.ConstLabels,
		}, func() float64 {
			return float64(protocol.GetPoolStats().Allocated)
		}),
	}
}

// RecordCommand records a completed command
func (p *Prometheus) RecordCommand(cmd string, duration time.Duration) {
	name := strings.ToLower(cmd)
	p.commandsTotal.WithLabelValues(name).Inc()
	p.commandDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordNetworkBytes records bytes transferred in one direction
func (p *Prometheus) RecordNetworkBytes(direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	p.networkBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrame records one reply frame
func (p *Prometheus) RecordFrame(bytes int64) {
	p.framesTotal.Inc()
	p.frameBytes.Observe(float64(bytes))
}

// RecordError records an error event
func (p *Prometheus) RecordError(errorType string) {
	p.errorsTotal.WithLabelValues(errorType).Inc()
}
