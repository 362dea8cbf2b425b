package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultBacklog         = 128
	DefaultMinThreads      = 2
	DefaultMaxThreads      = 16
	DefaultIdleTimeout     = 100 * time.Millisecond
	DefaultCallTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultMaxDepth        = 64
	DefaultMaxStringLength = 16 << 20
	DefaultServiceName     = "binrpc"
	DefaultDiscoveryTTL    = 10
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of an RPC server.
type ServerConfig struct {
	// Network settings
	Endpoint  string
	Transport string
	Backlog   int

	// Worker pool
	MinThreads  int
	MaxThreads  int
	IdleTimeout time.Duration

	// Deadline for writing a batch of replies
	WriteTimeout time.Duration

	// Accept limiter, a rate <= 0 disables limiting
	AcceptRate  float64
	AcceptBurst int

	// Parser limits
	MaxDepth        int
	MaxStringLength int

	// Metrics export (empty: disabled)
	MetricsEndpoint string

	// Service discovery (no endpoints: disabled)
	EtcdEndpoints []string
	ServiceName   string
	DiscoveryTTL  int64

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a config with every field set to its default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:        "127.0.0.1:8080",
		Transport:       "tcp",
		Backlog:         DefaultBacklog,
		MinThreads:      DefaultMinThreads,
		MaxThreads:      DefaultMaxThreads,
		IdleTimeout:     DefaultIdleTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		MaxDepth:        DefaultMaxDepth,
		MaxStringLength: DefaultMaxStringLength,
		ServiceName:     DefaultServiceName,
		DiscoveryTTL:    DefaultDiscoveryTTL,
		LogLevel:        "info",
	}
}

// Normalize replaces invalid values by their defaults.
func (c *ServerConfig) Normalize() {
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.MinThreads < 1 {
		c.MinThreads = 1
	}
	if c.MaxThreads < c.MinThreads {
		c.MaxThreads = c.MinThreads
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.AcceptBurst < 1 {
		c.AcceptBurst = 1
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxStringLength <= 0 {
		c.MaxStringLength = DefaultMaxStringLength
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.DiscoveryTTL <= 0 {
		c.DiscoveryTTL = DefaultDiscoveryTTL
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Backlog", strconv.Itoa(c.Backlog))

	addSection("Worker Pool")
	addField("Min Threads", strconv.Itoa(c.MinThreads))
	addField("Max Threads", strconv.Itoa(c.MaxThreads))
	addField("Idle Timeout", c.IdleTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())
	if c.AcceptRate > 0 {
		addField("Accept Rate", fmt.Sprintf("%.1f/s (burst %d)", c.AcceptRate, c.AcceptBurst))
	} else {
		addField("Accept Rate", "unlimited")
	}

	addSection("Parser")
	addField("Max Depth", strconv.Itoa(c.MaxDepth))
	addField("Max String Length", strconv.Itoa(c.MaxStringLength))

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	if len(c.EtcdEndpoints) > 0 {
		addSection("Discovery")
		addField("Service", c.ServiceName)
		addField("Lease TTL", fmt.Sprintf("%d sec", c.DiscoveryTTL))
		for i, endpoint := range c.EtcdEndpoints {
			addField("etcd "+strconv.Itoa(i), endpoint)
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint  string
	Transport string
	Timeout   time.Duration

	MaxDepth        int
	MaxStringLength int

	// Resolve Endpoint through etcd if set
	EtcdEndpoints []string
	ServiceName   string
}

// DefaultClientConfig returns a config with every field set to its default.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:        "127.0.0.1:8080",
		Transport:       "tcp",
		Timeout:         DefaultCallTimeout,
		MaxDepth:        DefaultMaxDepth,
		MaxStringLength: DefaultMaxStringLength,
		ServiceName:     DefaultServiceName,
	}
}

// Normalize replaces invalid values by their defaults.
func (c *ClientConfig) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultCallTimeout
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.MaxStringLength <= 0 {
		c.MaxStringLength = DefaultMaxStringLength
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Transport", c.Transport)
	addField("Timeout", c.Timeout.String())

	if len(c.EtcdEndpoints) > 0 {
		addSection("Discovery")
		addField("Service", c.ServiceName)
		for i, endpoint := range c.EtcdEndpoints {
			addField("etcd "+strconv.Itoa(i), endpoint)
		}
	}

	return sb.String()
}
